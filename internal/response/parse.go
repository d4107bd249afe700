package response

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
)

var (
	listingPattern = regexp.MustCompile(`^\(([^)]*)\) (NIL|"(?:[^"\\]|\\.)*") (.+)$`)
	fetchPattern   = regexp.MustCompile(`^(\d+) \((.*)\)$`)
	flagsItem      = regexp.MustCompile(`(?i)\bFLAGS \(([^)]*)\)`)
	uidItem        = regexp.MustCompile(`(?i)\bUID (\d+)\b`)
	messagesItem   = regexp.MustCompile(`(?i)\bMESSAGES (\d+)\b`)
	unseenItem     = regexp.MustCompile(`(?i)\bUNSEEN (\d+)\b`)
)

// Listing is one entry of a LIST response.
type Listing struct {
	Attributes []imap.MailboxAttr
	// Delimiter is empty for a NIL hierarchy delimiter.
	Delimiter string
	Name      string
}

// Has reports whether the listing carries attr. Attributes are compared
// case-insensitively since servers disagree on \Noselect vs \NoSelect.
func (l Listing) Has(attr imap.MailboxAttr) bool {
	for _, a := range l.Attributes {
		if strings.EqualFold(string(a), string(attr)) {
			return true
		}
	}
	return false
}

// ParseListing parses `(\HasNoChildren) "/" INBOX`. Quoted names are
// unquoted, unquoted names are taken verbatim up to the end of the line.
func ParseListing(line string) (Listing, error) {
	m := listingPattern.FindStringSubmatch(line)
	if m == nil {
		return Listing{}, &MalformedError{Kind: "LIST", Line: line}
	}

	var l Listing
	for _, f := range strings.Fields(m[1]) {
		l.Attributes = append(l.Attributes, imap.MailboxAttr(f))
	}
	if m[2] != "NIL" {
		l.Delimiter = unquote(m[2])
	}

	name := m[3]
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = unquote(name)
	}
	if name == "" {
		return Listing{}, &MalformedError{Kind: "LIST", Line: line}
	}
	l.Name = name
	return l, nil
}

// FetchFlags holds the flag state reported on one FETCH line.
type FetchFlags struct {
	SeqNum uint32
	// UID is zero when the line carries no UID item.
	UID   imap.UID
	Flags []imap.Flag
}

// Has reports whether flag is set, ignoring case.
func (f FetchFlags) Has(flag imap.Flag) bool {
	for _, fl := range f.Flags {
		if strings.EqualFold(string(fl), string(flag)) {
			return true
		}
	}
	return false
}

// ID returns the UID when present and the sequence number otherwise.
func (f FetchFlags) ID(useUID bool) string {
	if useUID && f.UID != 0 {
		return strconv.FormatUint(uint64(f.UID), 10)
	}
	return strconv.FormatUint(uint64(f.SeqNum), 10)
}

// ParseFlags parses `12 (UID 101 FLAGS (\Seen) ...)`. The FLAGS item is
// required.
func ParseFlags(line string) (FetchFlags, error) {
	m := fetchPattern.FindStringSubmatch(line)
	if m == nil {
		return FetchFlags{}, &MalformedError{Kind: "FETCH", Line: line}
	}
	seq, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return FetchFlags{}, &MalformedError{Kind: "FETCH", Line: line}
	}

	fm := flagsItem.FindStringSubmatch(m[2])
	if fm == nil {
		return FetchFlags{}, &MalformedError{Kind: "FETCH", Line: line}
	}

	out := FetchFlags{SeqNum: uint32(seq), Flags: []imap.Flag{}}
	for _, f := range strings.Fields(fm[1]) {
		out.Flags = append(out.Flags, imap.Flag(f))
	}
	if um := uidItem.FindStringSubmatch(m[2]); um != nil {
		uid, err := strconv.ParseUint(um[1], 10, 32)
		if err != nil {
			return FetchFlags{}, &MalformedError{Kind: "FETCH", Line: line}
		}
		out.UID = imap.UID(uid)
	}
	return out, nil
}

// StatusCounters holds the MESSAGES and UNSEEN counters of a STATUS
// response. Known is false when either counter was missing, in which case
// both counters are zero and mean "unknown", not "empty".
type StatusCounters struct {
	Total  uint32
	Unseen uint32
	Known  bool
}

// ParseStatus parses `INBOX (MESSAGES 12 UNSEEN 3)`. It never fails.
func ParseStatus(line string) StatusCounters {
	_, items, ok := strings.Cut(skipMailbox(line), "(")
	if !ok {
		return StatusCounters{}
	}
	total, ok := counter(messagesItem, items)
	if !ok {
		return StatusCounters{}
	}
	unseen, ok := counter(unseenItem, items)
	if !ok {
		return StatusCounters{}
	}
	return StatusCounters{Total: total, Unseen: unseen, Known: true}
}

// skipMailbox returns what follows the leading mailbox name of line, which
// is a quoted string or an atom.
func skipMailbox(line string) string {
	line = strings.TrimLeft(line, " ")
	if !strings.HasPrefix(line, `"`) {
		if i := strings.IndexAny(line, " ("); i >= 0 {
			return line[i:]
		}
		return ""
	}
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			return line[i+1:]
		}
	}
	return ""
}

func counter(re *regexp.Regexp, s string) (uint32, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// ParseSearch collects the ids of one or more SEARCH lines in server
// order. Tokens that are not numbers are skipped.
func ParseSearch(lines []string) []string {
	ids := []string{}
	for _, l := range lines {
		for _, tok := range strings.Fields(l) {
			if _, err := strconv.ParseUint(tok, 10, 32); err == nil {
				ids = append(ids, tok)
			}
		}
	}
	return ids
}

// ParseExists returns the last EXISTS count of a SELECT response.
func ParseExists(lines []string) (uint32, bool) {
	var (
		n     uint32
		found bool
	)
	for _, l := range lines {
		v, err := strconv.ParseUint(strings.TrimSpace(l), 10, 32)
		if err != nil {
			continue
		}
		n, found = uint32(v), true
	}
	return n, found
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
