package mailclient

import (
	"context"
	"strconv"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/response"
	"github.com/nhle/mailbrowse/tests/testutil"
)

func inboxScenario(t *testing.T, opts ...testutil.ServerOption) *testutil.Server {
	t.Helper()
	opts = append([]testutil.ServerOption{
		testutil.WithMailbox("INBOX",
			testutil.NewMessage(101, `"Alice" <alice@example.org>`, "first"),
			testutil.NewMessage(102, "bob@example.org", "second"),
			testutil.NewMessage(103, "carol@example.org", "=?UTF-8?Q?th=C3=AErd?=", `\Seen`),
		),
		testutil.WithMailbox("Archive"),
	}, opts...)
	return testutil.NewServer(t, opts...)
}

func ids(messages []model.MessageSummary) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestGetMessagesSinglePage(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	got, err := sess.GetMessages(context.Background(), "INBOX", 10, 0)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"101", "102", "103"}, ids(got))
	assert.True(t, got[0].Unseen)
	assert.True(t, got[1].Unseen)
	assert.False(t, got[2].Unseen)

	assert.Equal(t, `"Alice" <alice@example.org>`, got[0].From)
	assert.Equal(t, "first", got[0].Subject)
	assert.Equal(t, "thîrd", got[2].Subject)
	assert.Equal(t, "INBOX", got[2].Mailbox)

	assert.Equal(t, 1, srv.CommandCount("UID FETCH"))
	assert.Contains(t, srv.Commands(), "UID FETCH 103,102,101 (FLAGS BODY.PEEK[HEADER])")

	// Headers were peeked.
	for _, m := range srv.Messages("INBOX")[:2] {
		assert.NotContains(t, m.Flags, `\Seen`)
	}
}

func TestGetMessagesPaging(t *testing.T) {
	var msgs []testutil.Message
	for i := uint32(1); i <= 20; i++ {
		msgs = append(msgs, testutil.NewMessage(i, "sender@example.org", "message "+strconv.Itoa(int(i))))
	}
	srv := testutil.NewServer(t, testutil.WithMailbox("INBOX", msgs...))
	sess := connect(t, srv, nil)
	ctx := context.Background()

	all, err := sess.ListMessageIDs(ctx, "INBOX", "")
	require.NoError(t, err)
	require.Len(t, all, 20)
	assert.Equal(t, "20", all[0])
	assert.Equal(t, "1", all[19])

	const limit = 5
	seen := map[string]bool{}
	var covered []string
	for offset := 0; offset < 20; offset += limit {
		page, err := sess.GetMessages(ctx, "INBOX", limit, offset)
		require.NoError(t, err)
		require.Len(t, page, limit, "offset %d", offset)

		for _, m := range page {
			assert.False(t, seen[m.ID], "id %s returned twice", m.ID)
			seen[m.ID] = true
		}
		// Each page is the next run of newest-first ids, shown oldest first.
		want := append([]string(nil), all[offset:offset+limit]...)
		for i, j := 0, len(want)-1; i < j; i, j = i+1, j-1 {
			want[i], want[j] = want[j], want[i]
		}
		assert.Equal(t, want, ids(page))
		covered = append(covered, ids(page)...)
	}
	assert.Len(t, covered, 20)

	past, err := sess.GetMessages(ctx, "INBOX", limit, 20)
	require.NoError(t, err)
	assert.Empty(t, past)

	short, err := sess.GetMessages(ctx, "INBOX", limit, 18)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(short))

	defaulted, err := sess.GetMessages(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, DefaultPageSize)
}

func TestGetMessagesEmptyMailbox(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	got, err := sess.GetMessages(context.Background(), "Archive", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, srv.CommandCount("UID FETCH"))
}

func TestListMessageIDsCriterion(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	got, err := sess.ListMessageIDs(context.Background(), "INBOX", "UNSEEN")
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "101"}, got)
	assert.Contains(t, srv.Commands(), "UID SEARCH UNSEEN")
}

func TestSearchMessages(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	first, err := sess.SearchMessages(ctx, "INBOX", "UNSEEN", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"102"}, ids(first))
	assert.True(t, first[0].Unseen)

	rest, err := sess.SearchMessages(ctx, "INBOX", "UNSEEN", 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, ids(rest))

	assert.Equal(t, 2, srv.CommandCount("UID SEARCH UNSEEN"))
	assert.Contains(t, srv.Commands(), "UID FETCH 102 (FLAGS BODY.PEEK[HEADER])")
}

func TestIsDefaultCriterion(t *testing.T) {
	assert.True(t, IsDefaultCriterion(""))
	assert.True(t, IsDefaultCriterion(" undeleted "))
	assert.True(t, IsDefaultCriterion(DefaultCriterion))
	assert.False(t, IsDefaultCriterion("UNSEEN"))
}

func TestListMessageIDsUsesSelection(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	n, err := sess.SelectMailbox(ctx, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)

	_, err = sess.ListMessageIDs(ctx, "", "")
	require.NoError(t, err)
	_, err = sess.ListMessageIDs(ctx, "INBOX", "")
	require.NoError(t, err)

	assert.Equal(t, 1, srv.CommandCount("SELECT"))
	assert.Equal(t, "INBOX", sess.Selected())
	assert.Equal(t, imap.ConnStateSelected, sess.State())
}

func TestSelectMailboxFailureClearsSelection(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	_, err := sess.SelectMailbox(ctx, "INBOX")
	require.NoError(t, err)

	_, err = sess.SelectMailbox(ctx, "Nope")
	var imapErr *imap.Error
	require.ErrorAs(t, err, &imapErr)
	assert.Equal(t, imap.ResponseCodeNonExistent, imapErr.Code)
	assert.Empty(t, sess.Selected())

	_, err = sess.ListMessageIDs(ctx, "", "")
	assert.ErrorIs(t, err, ErrNoMailboxSelected)
}

func TestNoMailboxSelected(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	_, err := sess.ListMessageIDs(ctx, "", "")
	assert.ErrorIs(t, err, ErrNoMailboxSelected)

	_, err = sess.FetchHeaders(ctx, []string{"101"}, "", "")
	assert.ErrorIs(t, err, ErrNoMailboxSelected)

	_, err = sess.GetMessages(ctx, "", 10, 0)
	assert.ErrorIs(t, err, ErrNoMailboxSelected)

	_, err = sess.GetMessageBody(ctx, "101", "")
	assert.ErrorIs(t, err, ErrNoMailboxSelected)

	assert.ErrorIs(t, sess.MarkSeen(ctx, "101", ""), ErrNoMailboxSelected)
	assert.ErrorIs(t, sess.MarkUnseen(ctx, "101", ""), ErrNoMailboxSelected)
	assert.ErrorIs(t, sess.Delete(ctx, "101", ""), ErrNoMailboxSelected)

	for _, c := range srv.Commands() {
		assert.NotContains(t, c, "SEARCH")
		assert.NotContains(t, c, "FETCH")
		assert.NotContains(t, c, "STORE")
	}
}

func TestFetchHeadersOrderAndFiltering(t *testing.T) {
	srv := inboxScenario(t, testutil.WithUnsolicitedFetch())
	sess := connect(t, srv, nil)

	seq, err := sess.FetchHeaders(context.Background(), []string{"103", "101", "999"}, "INBOX", "")
	require.NoError(t, err)

	var got []HeaderEntry
	for e, err := range seq {
		require.NoError(t, err)
		got = append(got, e)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "103", got[0].ID)
	assert.True(t, got[0].Seen())
	assert.Equal(t, "carol@example.org", got[0].Header.Get("From"))
	assert.Equal(t, "101", got[1].ID)
	assert.False(t, got[1].Seen())
	assert.Equal(t, "first", got[1].Header.Get("Subject"))
}

func TestFetchHeadersStopsEarly(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	seq, err := sess.FetchHeaders(context.Background(), []string{"101", "102", "103"}, "INBOX", "")
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestFetchHeadersEmpty(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	seq, err := sess.FetchHeaders(context.Background(), nil, "INBOX", "")
	require.NoError(t, err)
	for range seq {
		t.Fatal("unexpected entry")
	}
	assert.Zero(t, srv.CommandCount("UID FETCH"))
}

func TestFetchHeadersRejectsBadID(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	_, err := sess.FetchHeaders(context.Background(), []string{"1:*"}, "INBOX", "")
	assert.Error(t, err)
	assert.Zero(t, srv.CommandCount("UID FETCH"))
}

func TestSequenceNumbers(t *testing.T) {
	srv := inboxScenario(t)
	opts := testOptions()
	opts.IDKind = SequenceNumbers
	sess := connect(t, srv, opts)
	ctx := context.Background()

	got, err := sess.GetMessages(ctx, "INBOX", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
	assert.False(t, got[2].Unseen)

	require.NoError(t, sess.MarkSeen(ctx, "1", "INBOX"))
	assert.Contains(t, srv.Commands(), `STORE 1 +FLAGS.SILENT (\Seen)`)
	assert.Zero(t, srv.CommandCount("UID "))
}

func TestMarkSeenAndUnseen(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	require.NoError(t, sess.MarkSeen(ctx, "101", "INBOX"))
	assert.Contains(t, srv.Messages("INBOX")[0].Flags, `\Seen`)
	require.NoError(t, sess.MarkSeen(ctx, "101", "INBOX"))
	assert.Equal(t, []string{`\Seen`}, srv.Messages("INBOX")[0].Flags)

	require.NoError(t, sess.MarkUnseen(ctx, "103", ""))
	assert.NotContains(t, srv.Messages("INBOX")[2].Flags, `\Seen`)

	assert.Contains(t, srv.Commands(), `UID STORE 101 +FLAGS.SILENT (\Seen)`)
	assert.Contains(t, srv.Commands(), `UID STORE 103 -FLAGS.SILENT (\Seen)`)

	got, err := sess.GetMessages(ctx, "INBOX", 10, 0)
	require.NoError(t, err)
	assert.False(t, got[0].Unseen)
	assert.True(t, got[2].Unseen)
}

func TestDeleteThenList(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	require.NoError(t, sess.Delete(ctx, "102", "INBOX"))

	got, err := sess.ListMessageIDs(ctx, "INBOX", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "101"}, got)
	assert.Len(t, srv.Messages("INBOX"), 2)
	assert.Equal(t, 1, srv.CommandCount("EXPUNGE"))
	assert.Contains(t, srv.Commands(), `UID STORE 102 +FLAGS.SILENT (\Deleted)`)
}

func TestGetMessageBody(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)
	ctx := context.Background()

	msg, err := sess.GetMessageBody(ctx, "102", "INBOX")
	require.NoError(t, err)

	assert.Equal(t, model.MessageRef{ID: "102", Mailbox: "INBOX"}, msg.MessageRef)
	assert.Equal(t, "bob@example.org", msg.From)
	assert.Equal(t, "me@example.org", msg.To)
	assert.Equal(t, "second", msg.Subject)
	assert.Equal(t, "Body of message 102.\r\n", msg.BodyText)
	assert.Equal(t, 2006, msg.Sent.Year())
	assert.True(t, msg.Unseen)

	assert.NotContains(t, srv.Messages("INBOX")[1].Flags, `\Seen`)
	assert.Contains(t, srv.Commands(), "UID FETCH 102 (FLAGS BODY.PEEK[])")
}

func TestGetMessageBodyNotFound(t *testing.T) {
	srv := inboxScenario(t)
	sess := connect(t, srv, nil)

	_, err := sess.GetMessageBody(context.Background(), "404", "INBOX")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = sess.GetMessageBody(context.Background(), "abc", "INBOX")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMessageNotFound)
}

func TestDecodedPlaceholderHeaders(t *testing.T) {
	srv := testutil.NewServer(t, testutil.WithMailbox("INBOX", testutil.Message{
		UID: 7,
		Raw: "Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n\r\nno headers\r\n",
	}))
	sess := connect(t, srv, nil)

	got, err := sess.GetMessages(context.Background(), "INBOX", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, response.HeaderPlaceholder, got[0].From)
	assert.Equal(t, response.HeaderPlaceholder, got[0].Subject)
}
