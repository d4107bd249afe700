package model

import (
	"fmt"
	"strings"
)

// ListItem is the common interface for entries shown in the list views.
// MailboxSummary and MessageSummary implement it.
type ListItem interface {
	GetID() string
	Label() string
	IsUnseen() bool
}

// GetID returns the mailbox name.
func (m MailboxSummary) GetID() string { return m.Name }

// Label returns "name (unseen/total)", or just the name when either
// counter is unknown.
func (m MailboxSummary) Label() string {
	if m.Total == nil || m.Unseen == nil {
		return m.Name
	}
	return fmt.Sprintf("%s (%d/%d)", m.Name, *m.Unseen, *m.Total)
}

// IsUnseen reports whether the mailbox is known to hold unseen messages.
func (m MailboxSummary) IsUnseen() bool {
	return m.Unseen != nil && *m.Unseen > 0
}

// GetID returns the message id.
func (m MessageSummary) GetID() string { return m.ID }

// Label returns "sender - subject".
func (m MessageSummary) Label() string {
	return SenderName(m.From) + " - " + CleanSubject(m.Subject)
}

// IsUnseen reports whether the message lacks the \Seen flag.
func (m MessageSummary) IsUnseen() bool { return m.Unseen }

// SenderName shortens a From header for display: the display name of
// `"Name" <addr>`, or the local part of a bare address.
func SenderName(from string) string {
	if name, _, ok := strings.Cut(from, " <"); ok {
		return strings.Trim(name, `"`)
	}
	local, _, _ := strings.Cut(from, "@")
	return local
}

// CleanSubject removes line breaks left over from header folding.
func CleanSubject(subject string) string {
	return strings.ReplaceAll(subject, "\r\n", "")
}
