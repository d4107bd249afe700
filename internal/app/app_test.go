package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/99designs/keyring"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrowse/internal/credential"
	"github.com/nhle/mailbrowse/internal/mailclient"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/ui/command"
	"github.com/nhle/mailbrowse/internal/ui/confirm"
	"github.com/nhle/mailbrowse/internal/ui/detail"
	"github.com/nhle/mailbrowse/internal/ui/maillist"
)

type fakeMailer struct {
	messages  []model.MessageSummary
	calls     []string
	loggedOut int
}

func (f *fakeMailer) ListMailboxes(_ context.Context, fetchStatus bool) ([]model.MailboxSummary, error) {
	f.calls = append(f.calls, fmt.Sprintf("list %t", fetchStatus))
	return []model.MailboxSummary{{Name: "INBOX"}, {Name: "Archive"}}, nil
}

func (f *fakeMailer) GetMessages(_ context.Context, mailbox string, limit, offset int) ([]model.MessageSummary, error) {
	f.calls = append(f.calls, fmt.Sprintf("messages %s %d %d", mailbox, limit, offset))
	if offset >= len(f.messages) {
		return nil, nil
	}
	return f.messages[offset:min(offset+limit, len(f.messages))], nil
}

func (f *fakeMailer) SearchMessages(_ context.Context, mailbox, criterion string, limit, offset int) ([]model.MessageSummary, error) {
	f.calls = append(f.calls, fmt.Sprintf("search %s %s %d %d", mailbox, criterion, limit, offset))
	var matched []model.MessageSummary
	for _, msg := range f.messages {
		if criterion == "UNSEEN" && !msg.Unseen {
			continue
		}
		matched = append(matched, msg)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

func (f *fakeMailer) GetMessageBody(_ context.Context, id, mailbox string) (*model.Message, error) {
	f.calls = append(f.calls, "body "+id)
	if id == "404" {
		return nil, mailclient.ErrMessageNotFound
	}
	return &model.Message{MessageRef: model.MessageRef{ID: id, Mailbox: mailbox}, Subject: "hello"}, nil
}

func (f *fakeMailer) MarkSeen(_ context.Context, id, _ string) error {
	f.calls = append(f.calls, "seen "+id)
	return nil
}

func (f *fakeMailer) MarkUnseen(_ context.Context, id, _ string) error {
	f.calls = append(f.calls, "unseen "+id)
	return nil
}

func (f *fakeMailer) Delete(_ context.Context, id, _ string) error {
	f.calls = append(f.calls, "delete "+id)
	return nil
}

func (f *fakeMailer) Logout(context.Context) error {
	f.loggedOut++
	return nil
}

var testAccount = model.AccountConfig{Host: "imap.example.org", Username: "alice", UseSSL: true}

func summary(id string, unseen bool) model.MessageSummary {
	return model.MessageSummary{
		MessageRef: model.MessageRef{ID: id, Mailbox: "INBOX"},
		From:       id + "@example.org",
		Subject:    "message " + id,
		Unseen:     unseen,
	}
}

// step feeds msg to m and runs the resulting commands one level deep,
// dropping spinner ticks.
func step(t *testing.T, m Model, msg tea.Msg) (Model, []tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	m, ok := next.(Model)
	require.True(t, ok)
	return m, run(cmd)
}

func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	var out []tea.Msg
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			out = append(out, run(c)...)
		}
	case spinner.TickMsg, nil:
	default:
		out = append(out, msg)
	}
	return out
}

func single(t *testing.T, msgs []tea.Msg) tea.Msg {
	t.Helper()
	require.Len(t, msgs, 1)
	return msgs[0]
}

func connected(t *testing.T, mailer *fakeMailer, store *credential.Store) Model {
	t.Helper()
	return connectedWith(t, mailer, store, model.BrowseConfig{PageSize: 2, FetchStatus: true})
}

func connectedWith(t *testing.T, mailer *fakeMailer, store *credential.Store, browse model.BrowseConfig) Model {
	t.Helper()
	m := New(context.Background(), Options{
		Account:  testAccount,
		Password: "secret",
		Browse:   browse,
		Connect: func(context.Context, model.AccountConfig, string) (Mailer, error) {
			return mailer, nil
		},
		Credentials: store,
	})
	require.Equal(t, ViewConnecting, m.currentView)

	m, msgs := step(t, m, m.connect(testAccount, "secret", store != nil)())
	assert.Equal(t, ViewMailboxes, m.currentView)
	m, _ = step(t, m, single(t, msgs))
	require.Equal(t, 2, m.mailboxes.Len())
	return m
}

func openInbox(t *testing.T, m Model) Model {
	t.Helper()
	m, msgs := step(t, m, maillist.SelectedMsg{Item: model.MailboxSummary{Name: "INBOX"}})
	assert.Equal(t, ViewMessages, m.currentView)
	m, _ = step(t, m, single(t, msgs))
	return m
}

func TestStartsWithLoginFormWithoutPassword(t *testing.T) {
	m := New(context.Background(), Options{Account: testAccount})
	assert.Equal(t, ViewLogin, m.currentView)
	assert.NotNil(t, m.Init())
}

func TestInvalidCredentialsReopensLogin(t *testing.T) {
	m := New(context.Background(), Options{Account: testAccount, Password: "wrong"})
	err := &mailclient.InvalidCredentialsError{
		Username: "alice",
		Err:      &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCodeAuthenticationFailed},
	}

	next, cmd := m.Update(connectedMsg{account: testAccount, err: err})
	m = next.(Model)
	assert.Equal(t, ViewLogin, m.currentView)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.loginForm.View(), "Invalid credentials for alice")
	assert.Nil(t, m.session.get())
}

func TestConnectRemembersPassword(t *testing.T) {
	t.Setenv(credential.PasswordEnv, "")
	store := credential.NewStore(keyring.NewArrayKeyring(nil))
	mailer := &fakeMailer{}

	connected(t, mailer, store)

	pw, err := store.Password("alice", "imap.example.org")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
	assert.Equal(t, []string{"list true"}, mailer.calls)
}

func TestBrowseMessages(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", true), summary("8", false), summary("7", false)}}
	m := openInbox(t, connected(t, mailer, nil))

	assert.Equal(t, "INBOX", m.mailbox)
	assert.Equal(t, 2, m.messages.Len())

	m, msgs := step(t, m, maillist.PageMsg{Delta: 1})
	m, _ = step(t, m, single(t, msgs))
	assert.Equal(t, 2, m.offset)
	assert.Equal(t, 1, m.messages.Len())

	m, msgs = step(t, m, maillist.PageMsg{Delta: 1})
	m, _ = step(t, m, single(t, msgs))
	assert.Equal(t, 2, m.offset)
	assert.Equal(t, "No older messages", m.status)

	m, msgs = step(t, m, maillist.PageMsg{Delta: -1})
	m, _ = step(t, m, single(t, msgs))
	assert.Equal(t, 0, m.offset)

	m, msgs = step(t, m, maillist.PageMsg{Delta: -1})
	assert.Empty(t, msgs)
	assert.Equal(t, "Already at the newest messages", m.status)

	assert.Equal(t, []string{
		"list true",
		"messages INBOX 2 0",
		"messages INBOX 2 2",
		"messages INBOX 2 4",
		"messages INBOX 2 0",
	}, mailer.calls)
}

func TestBrowseWithConfiguredCriterion(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", true), summary("8", false), summary("7", true)}}
	browse := model.BrowseConfig{PageSize: 2, FetchStatus: true, Criterion: "UNSEEN"}
	m := openInbox(t, connectedWith(t, mailer, nil, browse))

	require.Equal(t, 2, m.messages.Len())
	item, ok := m.messages.SelectedItem()
	require.True(t, ok)
	assert.Equal(t, "9", item.(model.MessageSummary).ID)
	assert.Equal(t, []string{"list true", "search INBOX UNSEEN 2 0"}, mailer.calls)
}

func TestDefaultCriterionUsesGetMessages(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", true)}}
	browse := model.BrowseConfig{PageSize: 2, Criterion: "undeleted"}
	openInbox(t, connectedWith(t, mailer, nil, browse))

	assert.Equal(t, []string{"list false", "messages INBOX 2 0"}, mailer.calls)
}

func TestHeaderLocation(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", true), summary("8", true), summary("7", true)}}
	browse := model.BrowseConfig{PageSize: 2, Criterion: "unseen"}
	m := connectedWith(t, mailer, nil, browse)

	loc := m.location()
	assert.Equal(t, "alice@imap.example.org", loc.Account)
	assert.Empty(t, loc.Mailbox)
	assert.Zero(t, loc.Page)

	m = openInbox(t, m)
	m, msgs := step(t, m, maillist.PageMsg{Delta: 1})
	m, _ = step(t, m, single(t, msgs))
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})

	loc = m.location()
	assert.Equal(t, "INBOX", loc.Mailbox)
	assert.Equal(t, 2, loc.Page)
	assert.Equal(t, "UNSEEN", loc.Criterion)
	assert.Contains(t, m.View(), "mailbrowse › INBOX · page 2 · UNSEEN")
	assert.Contains(t, m.View(), "alice@imap.example.org")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	m = next.(Model)
	require.Equal(t, ViewHelp, m.currentView)
	assert.Equal(t, 2, m.location().Page)
}

func TestMarkSeenRefreshes(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", true)}}
	m := openInbox(t, connected(t, mailer, nil))

	m, msgs := step(t, m, maillist.ActionMsg{Action: maillist.ActionMarkSeen, Message: summary("9", true)})
	m, msgs = step(t, m, single(t, msgs))
	assert.Contains(t, m.status, "mark seen done")
	_, ok := single(t, msgs).(messagesLoadedMsg)
	assert.True(t, ok)

	assert.Contains(t, mailer.calls, "seen 9")
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", false)}}
	m := openInbox(t, connected(t, mailer, nil))

	next, _ := m.Update(maillist.ActionMsg{Action: maillist.ActionDelete, Message: summary("9", false)})
	m = next.(Model)
	assert.Equal(t, ViewConfirm, m.currentView)
	assert.NotContains(t, mailer.calls, "delete 9")

	m, msgs := step(t, m, confirm.ResultMsg{Confirmed: false, Message: summary("9", false)})
	assert.Empty(t, msgs)
	assert.Equal(t, ViewMessages, m.currentView)
	assert.Equal(t, "Delete cancelled", m.status)

	next, _ = m.Update(maillist.ActionMsg{Action: maillist.ActionDelete, Message: summary("9", false)})
	m = next.(Model)
	m, msgs = step(t, m, confirm.ResultMsg{Confirmed: true, Message: summary("9", false)})
	assert.Equal(t, ViewMessages, m.currentView)
	m, _ = step(t, m, single(t, msgs))
	assert.Contains(t, mailer.calls, "delete 9")
	assert.False(t, m.isError)
}

func TestOpenMessage(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", false)}}
	m := openInbox(t, connected(t, mailer, nil))

	m, msgs := step(t, m, maillist.SelectedMsg{Item: summary("9", false)})
	assert.Equal(t, ViewMessage, m.currentView)
	loaded, ok := single(t, msgs).(detail.MessageLoadedMsg)
	require.True(t, ok)

	m, _ = step(t, m, loaded)
	require.NotNil(t, m.detail.Message())
	assert.Equal(t, "9", m.detail.Message().ID)

	m, _ = step(t, m, detail.BackMsg{})
	assert.Equal(t, ViewMessages, m.currentView)
}

func TestOpenMissingMessage(t *testing.T) {
	mailer := &fakeMailer{}
	m := openInbox(t, connected(t, mailer, nil))

	m, msgs := step(t, m, maillist.SelectedMsg{Item: summary("404", false)})
	m, _ = step(t, m, single(t, msgs))
	assert.Equal(t, ViewMessages, m.currentView)
	assert.True(t, m.isError)
	assert.Contains(t, m.status, "message not found")
}

func TestQuitLogsOut(t *testing.T) {
	mailer := &fakeMailer{}
	m := connected(t, mailer, nil)

	m, msgs := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	out, ok := single(t, msgs).(loggedOutMsg)
	require.True(t, ok)
	assert.NoError(t, out.err)
	assert.Equal(t, 1, mailer.loggedOut)

	_, msgs = step(t, m, out)
	assert.Equal(t, tea.QuitMsg{}, single(t, msgs))

	require.NoError(t, m.Close(context.Background()))
	assert.Equal(t, 2, mailer.loggedOut)
}

func TestQuitBeforeLogin(t *testing.T) {
	m := New(context.Background(), Options{Account: testAccount, Password: "x"})
	_, msgs := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, tea.QuitMsg{}, single(t, msgs))
	assert.NoError(t, m.Close(context.Background()))
}

func TestCommandPrompt(t *testing.T) {
	mailer := &fakeMailer{messages: []model.MessageSummary{summary("9", false), summary("8", false), summary("7", false)}}
	m := connected(t, mailer, nil)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	assert.Equal(t, ViewCommand, m.currentView)

	m, msgs := step(t, m, command.CommandMsg{Name: command.Open, Arg: "Archive"})
	assert.Equal(t, ViewMessages, m.currentView)
	assert.Equal(t, "Archive", m.mailbox)
	m, _ = step(t, m, single(t, msgs))

	m, msgs = step(t, m, command.CommandMsg{Name: command.Page, N: 2})
	m, _ = step(t, m, single(t, msgs))
	assert.Equal(t, 2, m.offset)
	assert.Equal(t, 1, m.messages.Len())

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	m, _ = step(t, m, command.CancelMsg{})
	assert.Equal(t, ViewMessages, m.currentView)

	assert.Equal(t, []string{
		"list true",
		"messages Archive 2 0",
		"messages Archive 2 2",
	}, mailer.calls)
}
