package mailclient

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailbrowse/internal/imapwire"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/response"
)

// DefaultHeaderParts is the FETCH item list used by FetchHeaders.
const DefaultHeaderParts = "(FLAGS BODY.PEEK[HEADER])"

// HeaderEntry is the flag state and header block of one message.
type HeaderEntry struct {
	ID     string
	Flags  []imap.Flag
	Header mail.Header
}

// Seen reports whether the \Seen flag is set.
func (e HeaderEntry) Seen() bool {
	return response.FetchFlags{Flags: e.Flags}.Has(imap.FlagSeen)
}

// ListMessageIDs searches mailbox (or the selected mailbox when empty)
// and returns the matching ids newest first, the reverse of server order.
// An empty criterion means DefaultCriterion.
func (s *Session) ListMessageIDs(ctx context.Context, mailbox, criterion string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMessageIDs(ctx, mailbox, criterion)
}

func (s *Session) listMessageIDs(ctx context.Context, mailbox, criterion string) ([]string, error) {
	if err := s.ensureSelected(ctx, mailbox); err != nil {
		return nil, err
	}
	if strings.TrimSpace(criterion) == "" {
		criterion = DefaultCriterion
	}

	resp, err := s.command(ctx, "SEARCH", criterion)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.selected, err)
	}

	ids := response.ParseSearch(imapwire.Texts(resp.Untagged("SEARCH")))
	slices.Reverse(ids)
	return ids, nil
}

// IsDefaultCriterion reports whether criterion selects what GetMessages
// lists.
func IsDefaultCriterion(criterion string) bool {
	criterion = strings.TrimSpace(criterion)
	return criterion == "" || strings.EqualFold(criterion, DefaultCriterion)
}

// FetchHeaders fetches flags and header blocks for ids with a single FETCH
// command and returns them as a sequence in the order of ids. Ids the
// server returned nothing for are skipped, as are FETCH lines without a
// header literal. parts defaults to DefaultHeaderParts and must request a
// header section.
//
// The response is read before FetchHeaders returns; parsing happens as the
// sequence is consumed.
func (s *Session) FetchHeaders(
	ctx context.Context, ids []string, mailbox, parts string,
) (iter.Seq2[HeaderEntry, error], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchHeaders(ctx, ids, mailbox, parts)
}

func (s *Session) fetchHeaders(
	ctx context.Context, ids []string, mailbox, parts string,
) (iter.Seq2[HeaderEntry, error], error) {
	if err := s.ensureSelected(ctx, mailbox); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return func(func(HeaderEntry, error) bool) {}, nil
	}
	for _, id := range ids {
		if err := checkID(id); err != nil {
			return nil, err
		}
	}
	if parts == "" {
		parts = DefaultHeaderParts
	}

	resp, err := s.command(ctx, "FETCH", strings.Join(ids, ","), parts)
	if err != nil {
		return nil, fmt.Errorf("fetching headers from %s: %w", s.selected, err)
	}
	lines := resp.Untagged("FETCH")
	useUID := s.useUID

	return func(yield func(HeaderEntry, error) bool) {
		type fetched struct {
			flags  response.FetchFlags
			header []byte
		}
		byID := make(map[string]fetched, len(lines))
		for _, line := range lines {
			if len(line.Literals) == 0 {
				continue
			}
			flags, err := response.ParseFlags(line.Text)
			if err != nil {
				yield(HeaderEntry{}, err)
				return
			}
			byID[flags.ID(useUID)] = fetched{flags: flags, header: line.Literals[0]}
		}

		for _, id := range ids {
			f, ok := byID[id]
			if !ok {
				continue
			}
			h, err := response.ParseHeaderBlock(f.header)
			if !yield(HeaderEntry{ID: id, Flags: f.flags.Flags, Header: h}, err) {
				return
			}
		}
	}, nil
}

// GetMessages returns one page of the mailbox: the ids are listed newest
// first, the page [offset, offset+limit) of them is fetched, and the
// assembled page is reversed so it reads oldest first. A non-positive
// limit means DefaultPageSize.
func (s *Session) GetMessages(ctx context.Context, mailbox string, limit, offset int) ([]model.MessageSummary, error) {
	return s.SearchMessages(ctx, mailbox, DefaultCriterion, limit, offset)
}

// SearchMessages pages through the messages matching criterion the way
// GetMessages pages through the whole mailbox.
func (s *Session) SearchMessages(
	ctx context.Context, mailbox, criterion string, limit, offset int,
) ([]model.MessageSummary, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset = max(offset, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listMessageIDs(ctx, mailbox, criterion)
	if err != nil {
		return nil, err
	}
	if offset >= len(ids) {
		return []model.MessageSummary{}, nil
	}
	page := ids[offset:min(offset+limit, len(ids))]

	entries, err := s.fetchHeaders(ctx, page, "", "")
	if err != nil {
		return nil, err
	}

	messages := make([]model.MessageSummary, 0, len(page))
	for e, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("reading headers: %w", err)
		}
		messages = append(messages, model.MessageSummary{
			MessageRef: model.MessageRef{ID: e.ID, Mailbox: s.selected},
			From:       response.DecodeHeader(e.Header.Get("From")),
			Subject:    response.DecodeHeader(e.Header.Get("Subject")),
			Unseen:     !e.Seen(),
		})
	}
	slices.Reverse(messages)
	return messages, nil
}

// GetMessageBody fetches and parses the complete message id. The fetch
// does not set \Seen.
func (s *Session) GetMessageBody(ctx context.Context, id, mailbox string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSelected(ctx, mailbox); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}

	resp, err := s.command(ctx, "FETCH", id, "(FLAGS BODY.PEEK[])")
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	for _, line := range resp.Untagged("FETCH") {
		if len(line.Literals) == 0 {
			continue
		}
		flags, err := response.ParseFlags(line.Text)
		if err != nil {
			return nil, fmt.Errorf("fetching message %s: %w", id, err)
		}
		if flags.ID(s.useUID) != id {
			continue
		}

		body, err := response.ParseMessage(line.Literals[0])
		if err != nil {
			return nil, fmt.Errorf("parsing message %s: %w", id, err)
		}
		return &model.Message{
			MessageRef: model.MessageRef{ID: id, Mailbox: s.selected},
			From:       body.From,
			To:         body.To,
			Date:       body.Date,
			Sent:       body.Sent,
			Subject:    body.Subject,
			BodyText:   body.Text,
			Unseen:     !flags.Has(imap.FlagSeen),
		}, nil
	}
	return nil, fmt.Errorf("fetching message %s from %s: %w", id, s.selected, ErrMessageNotFound)
}
