package mailclient

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// MarkSeen sets \Seen on message id.
func (s *Session) MarkSeen(ctx context.Context, id, mailbox string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeFlag(ctx, id, mailbox, "+FLAGS.SILENT", imap.FlagSeen)
}

// MarkUnseen clears \Seen on message id.
func (s *Session) MarkUnseen(ctx context.Context, id, mailbox string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeFlag(ctx, id, mailbox, "-FLAGS.SILENT", imap.FlagSeen)
}

// Delete sets \Deleted on message id and expunges the mailbox. The
// expunge removes every message flagged \Deleted, not only id.
func (s *Session) Delete(ctx context.Context, id, mailbox string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storeFlag(ctx, id, mailbox, "+FLAGS.SILENT", imap.FlagDeleted); err != nil {
		return err
	}
	if _, err := s.conn.Execute(ctx, "EXPUNGE"); err != nil {
		return fmt.Errorf("expunging %s: %w", s.selected, err)
	}
	s.log.Debug().Str("mailbox", s.selected).Str("id", id).Msg("Deleted message")
	return nil
}

func (s *Session) storeFlag(ctx context.Context, id, mailbox, op string, flag imap.Flag) error {
	if err := s.ensureSelected(ctx, mailbox); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if _, err := s.command(ctx, "STORE", id, op, "("+string(flag)+")"); err != nil {
		return fmt.Errorf("storing %s %s on %s: %w", op, flag, id, err)
	}
	return nil
}
