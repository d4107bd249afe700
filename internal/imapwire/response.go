package imapwire

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// literalMarker matches a literal announcement at the end of a line
// segment: {123}, the non-synchronizing {123+} and the binary ~{123}.
var literalMarker = regexp.MustCompile(`~?\{(\d+)\+?\}$`)

// literalMarkerAnywhere is used to splice literals back into a line.
var literalMarkerAnywhere = regexp.MustCompile(`~?\{\d+\+?\}`)

// Line is one untagged server response with the leading "* " removed.
// Literal payloads are cut out of Text, which keeps their {n} markers,
// and stored in Literals in the order they appeared.
type Line struct {
	Text     string
	Literals [][]byte
}

// Inline returns Text with each literal marker replaced by the literal
// content as a quoted string. Lines without literals are returned as is.
func (l Line) Inline() string {
	if len(l.Literals) == 0 {
		return l.Text
	}

	i := 0
	return literalMarkerAnywhere.ReplaceAllStringFunc(l.Text, func(marker string) string {
		if i >= len(l.Literals) {
			return marker
		}
		lit := l.Literals[i]
		i++
		return Quote(string(lit))
	})
}

// Response is the complete server answer to one tagged command.
type Response struct {
	Tag    string
	Status imap.StatusResponseType
	Code   imap.ResponseCode
	Text   string
	Lines  []Line
}

// Untagged returns the data lines of the given kind with the kind keyword
// removed, the way a caller wants to feed them to a parser:
//
//	LIST (\HasNoChildren) "/" INBOX    -> (\HasNoChildren) "/" INBOX
//	SEARCH 1 2 3                       -> 1 2 3
//	12 FETCH (FLAGS (\Seen))           -> 12 (FLAGS (\Seen))
//	23 EXISTS                          -> 23
func (r *Response) Untagged(kind string) []Line {
	var out []Line
	for _, l := range r.Lines {
		first, rest, _ := strings.Cut(l.Text, " ")
		if strings.EqualFold(first, kind) {
			out = append(out, Line{Text: rest, Literals: l.Literals})
			continue
		}

		if !isNumber(first) {
			continue
		}
		second, tail, _ := strings.Cut(rest, " ")
		if !strings.EqualFold(second, kind) {
			continue
		}
		text := first
		if tail != "" {
			text += " " + tail
		}
		out = append(out, Line{Text: text, Literals: l.Literals})
	}
	return out
}

// Err returns the status response as an *imap.Error when the command did
// not complete with OK.
func (r *Response) Err() error {
	if r.Status == imap.StatusResponseTypeOK {
		return nil
	}
	return &imap.Error{Type: r.Status, Code: r.Code, Text: r.Text}
}

// Texts returns the Text of every line.
func Texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// parseStatus splits "OK [CODE arg] human text" into its parts.
func parseStatus(s string) (imap.StatusResponseType, imap.ResponseCode, string) {
	typ, rest, _ := strings.Cut(s, " ")
	status := imap.StatusResponseType(strings.ToUpper(typ))

	var code imap.ResponseCode
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 0 {
			name, _, _ := strings.Cut(rest[1:end], " ")
			code = imap.ResponseCode(strings.ToUpper(name))
			rest = strings.TrimSpace(rest[end+1:])
		}
	}
	return status, code, rest
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}

// Quote renders s as an IMAP quoted string.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
