package mailclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailbrowse/internal/imapwire"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/response"
)

// SelectMailbox selects name and returns its message count. A failed
// SELECT leaves no mailbox selected, as the server deselects too.
func (s *Session) SelectMailbox(ctx context.Context, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == imap.ConnStateLogout {
		return 0, ErrSessionClosed
	}
	return s.selectMailbox(ctx, name)
}

func (s *Session) selectMailbox(ctx context.Context, name string) (uint32, error) {
	resp, err := s.conn.Execute(ctx, "SELECT", imapwire.Quote(name))
	if err != nil {
		s.selected = ""
		s.state = imap.ConnStateAuthenticated
		return 0, fmt.Errorf("selecting %s: %w", name, err)
	}

	exists, _ := response.ParseExists(imapwire.Texts(resp.Untagged("EXISTS")))
	s.selected = name
	s.state = imap.ConnStateSelected
	s.log.Debug().Str("mailbox", name).Uint32("exists", exists).Msg("Selected mailbox")
	return exists, nil
}

// ListMailboxes returns every mailbox in server order. With fetchStatus,
// one STATUS command per selectable mailbox fills in Total and Unseen;
// mailboxes the server reports no counters for keep them nil.
func (s *Session) ListMailboxes(ctx context.Context, fetchStatus bool) ([]model.MailboxSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == imap.ConnStateLogout {
		return nil, ErrSessionClosed
	}

	resp, err := s.conn.Execute(ctx, "LIST", `""`, `"*"`)
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	lines := resp.Untagged("LIST")
	mailboxes := make([]model.MailboxSummary, 0, len(lines))
	for _, line := range lines {
		l, err := response.ParseListing(line.Inline())
		if err != nil {
			return nil, fmt.Errorf("listing mailboxes: %w", err)
		}
		mailboxes = append(mailboxes, model.MailboxSummary{
			Name:        l.Name,
			Delimiter:   l.Delimiter,
			Attributes:  l.Attributes,
			HasChildren: l.Has(imap.MailboxAttrHasChildren),
		})
	}

	if !fetchStatus {
		return mailboxes, nil
	}

	for i := range mailboxes {
		mb := &mailboxes[i]
		if !selectable(mb.Attributes) {
			continue
		}
		counters, err := s.status(ctx, mb.Name)
		if err != nil {
			var imapErr *imap.Error
			if errors.As(err, &imapErr) {
				s.log.Warn().Err(err).Str("mailbox", mb.Name).Msg("STATUS refused, counters unknown")
				continue
			}
			return nil, err
		}
		if counters.Known {
			total, unseen := counters.Total, counters.Unseen
			mb.Total, mb.Unseen = &total, &unseen
		}
	}
	return mailboxes, nil
}

func (s *Session) status(ctx context.Context, name string) (response.StatusCounters, error) {
	resp, err := s.conn.Execute(ctx, "STATUS", imapwire.Quote(name), "(MESSAGES UNSEEN)")
	if err != nil {
		return response.StatusCounters{}, fmt.Errorf("status of %s: %w", name, err)
	}
	for _, line := range resp.Untagged("STATUS") {
		if c := response.ParseStatus(line.Inline()); c.Known {
			return c, nil
		}
	}
	return response.StatusCounters{}, nil
}

func selectable(attrs []imap.MailboxAttr) bool {
	l := response.Listing{Attributes: attrs}
	return !l.Has(imap.MailboxAttrNoSelect) && !l.Has(imap.MailboxAttrNonExistent)
}
