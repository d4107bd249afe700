package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailbrowse/internal/mailclient"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/ui/detail"
	"github.com/nhle/mailbrowse/internal/ui/maillist"
)

// connectedMsg reports the outcome of a login attempt.
type connectedMsg struct {
	mailer   Mailer
	account  model.AccountConfig
	password string
	remember bool
	err      error
}

// mailboxesLoadedMsg carries the mailbox directory.
type mailboxesLoadedMsg struct {
	mailboxes []model.MailboxSummary
	err       error
}

// messagesLoadedMsg carries one page of a mailbox.
type messagesLoadedMsg struct {
	mailbox  string
	offset   int
	messages []model.MessageSummary
	err      error
}

// messageErrMsg reports a failed message fetch.
type messageErrMsg struct {
	err error
}

// mutatedMsg reports the outcome of a message action.
type mutatedMsg struct {
	action  maillist.Action
	message model.MessageSummary
	err     error
}

// loggedOutMsg is sent once the session has been logged out on exit.
type loggedOutMsg struct {
	err error
}

func (m Model) connect(account model.AccountConfig, password string, remember bool) tea.Cmd {
	ctx, connect := m.ctx, m.opts.Connect
	return func() tea.Msg {
		mailer, err := connect(ctx, account, password)
		return connectedMsg{
			mailer:   mailer,
			account:  account,
			password: password,
			remember: remember,
			err:      err,
		}
	}
}

func (m Model) loadMailboxes() tea.Cmd {
	ctx, mailer, fetchStatus := m.ctx, m.session.get(), m.opts.Browse.FetchStatus
	return func() tea.Msg {
		boxes, err := mailer.ListMailboxes(ctx, fetchStatus)
		return mailboxesLoadedMsg{mailboxes: boxes, err: err}
	}
}

// loadMessages fetches one page of mailbox, filtered by the configured
// search criterion when it is not the default one.
func (m Model) loadMessages(mailbox string, offset int) tea.Cmd {
	ctx, mailer := m.ctx, m.session.get()
	limit, criterion := m.opts.Browse.PageSize, m.opts.Browse.Criterion
	return func() tea.Msg {
		var (
			msgs []model.MessageSummary
			err  error
		)
		if mailclient.IsDefaultCriterion(criterion) {
			msgs, err = mailer.GetMessages(ctx, mailbox, limit, offset)
		} else {
			msgs, err = mailer.SearchMessages(ctx, mailbox, criterion, limit, offset)
		}
		return messagesLoadedMsg{mailbox: mailbox, offset: offset, messages: msgs, err: err}
	}
}

func (m Model) loadMessage(ref model.MessageRef) tea.Cmd {
	ctx, mailer := m.ctx, m.session.get()
	return func() tea.Msg {
		msg, err := mailer.GetMessageBody(ctx, ref.ID, ref.Mailbox)
		if err != nil {
			return messageErrMsg{err: err}
		}
		return detail.MessageLoadedMsg{Message: msg}
	}
}

func (m Model) mutate(action maillist.Action, msg model.MessageSummary) tea.Cmd {
	ctx, mailer := m.ctx, m.session.get()
	return func() tea.Msg {
		var err error
		switch action {
		case maillist.ActionMarkSeen:
			err = mailer.MarkSeen(ctx, msg.ID, msg.Mailbox)
		case maillist.ActionMarkUnseen:
			err = mailer.MarkUnseen(ctx, msg.ID, msg.Mailbox)
		case maillist.ActionDelete:
			err = mailer.Delete(ctx, msg.ID, msg.Mailbox)
		}
		return mutatedMsg{action: action, message: msg, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	ctx, s := context.WithoutCancel(m.ctx), m.session
	return func() tea.Msg {
		return loggedOutMsg{err: s.close(ctx)}
	}
}
