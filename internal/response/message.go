package response

import (
	"bytes"
	"errors"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	htmlBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr)\s*>`)
)

// Body is a full message reduced to what the message view shows.
type Body struct {
	From    string
	To      string
	Date    string
	Subject string
	Text    string
	// Sent is the parsed Date header, zero when missing or invalid.
	Sent time.Time
}

// ParseMessage parses a complete RFC 5322 message. The first text/plain part
// becomes Text; without one, the first text/html part is reduced to plain
// text. Attachments are skipped. Input whose header cannot be read at all is
// returned as body text.
func ParseMessage(raw []byte) (Body, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Body{}, &MalformedError{Kind: "message", Line: ""}
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Body{Text: string(raw)}, nil
	}
	defer mr.Close()

	b := Body{
		From:    DecodeHeader(mr.Header.Get("From")),
		To:      DecodeHeader(mr.Header.Get("To")),
		Date:    mr.Header.Get("Date"),
		Subject: DecodeHeader(mr.Header.Get("Subject")),
	}
	if t, err := mr.Header.Date(); err == nil {
		b.Sent = t
	}

	var plain, htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(content)
		case contentType == "text/html" && htmlBody == "":
			htmlBody = string(content)
		}
	}

	switch {
	case plain != "":
		b.Text = plain
	case htmlBody != "":
		b.Text = stripHTML(htmlBody)
	}
	return b, nil
}

// stripHTML reduces an HTML body to readable text.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlBreakPattern.ReplaceAllString(s, "$0\n")
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
