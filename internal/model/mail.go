package model

import (
	"time"

	"github.com/emersion/go-imap/v2"
)

// MailboxSummary describes one mailbox of the account.
type MailboxSummary struct {
	// Name identifies the mailbox on the server.
	Name        string
	Delimiter   string
	Attributes  []imap.MailboxAttr
	HasChildren bool

	// Total and Unseen are nil when the counters were not requested or the
	// server did not report them. Nil means unknown, not zero.
	Total  *uint32
	Unseen *uint32
}

// MessageRef points at a message within a mailbox. The ID is only
// meaningful for that mailbox and the current selection.
type MessageRef struct {
	ID      string
	Mailbox string
}

// MessageSummary is a snapshot of one message taken for list display. It
// is not updated when the message changes on the server.
type MessageSummary struct {
	MessageRef
	From    string
	Subject string
	Unseen  bool
}

// DateLayout is the layout message dates are displayed in.
const DateLayout = "Mon, 02 Jan 2006 15:04"

// Message is a fully fetched message.
type Message struct {
	MessageRef
	From string
	To   string
	// Date is the raw Date header.
	Date string
	// Sent is Date parsed; zero when the header is missing or invalid.
	Sent     time.Time
	Subject  string
	BodyText string
	Unseen   bool
}

// DisplayDate returns the sent time in local time, falling back to the raw
// Date header when it could not be parsed.
func (m Message) DisplayDate() string {
	if m.Sent.IsZero() {
		return m.Date
	}
	return m.Sent.Local().Format(DateLayout)
}
