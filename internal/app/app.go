// Package app is the root Bubble Tea model: it routes between the login
// form, the mailbox and message lists, the message view and dialogs, and
// runs every server operation as a tea.Cmd.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbrowse/internal/credential"
	"github.com/nhle/mailbrowse/internal/keys"
	"github.com/nhle/mailbrowse/internal/mailclient"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
	"github.com/nhle/mailbrowse/internal/ui"
	"github.com/nhle/mailbrowse/internal/ui/command"
	"github.com/nhle/mailbrowse/internal/ui/confirm"
	"github.com/nhle/mailbrowse/internal/ui/detail"
	helpview "github.com/nhle/mailbrowse/internal/ui/help"
	"github.com/nhle/mailbrowse/internal/ui/loginform"
	"github.com/nhle/mailbrowse/internal/ui/maillist"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewConnecting
	ViewMailboxes
	ViewMessages
	ViewMessage
	ViewConfirm
	ViewHelp
	ViewCommand
)

// Options configures the root model.
type Options struct {
	Account model.AccountConfig
	// Password is tried first when set; otherwise the login form opens.
	Password string
	Browse   model.BrowseConfig
	Connect  Connector
	// Credentials receives passwords the user asks to remember. May be nil.
	Credentials *credential.Store
	Logger      zerolog.Logger
}

// sessionHolder is shared by all copies of the model so the session can
// be logged out from outside the program.
type sessionHolder struct {
	mu     sync.Mutex
	mailer Mailer
}

func (s *sessionHolder) set(m Mailer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailer = m
}

func (s *sessionHolder) get() Mailer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailer
}

func (s *sessionHolder) close(ctx context.Context) error {
	m := s.get()
	if m == nil {
		return nil
	}
	return m.Logout(ctx)
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx          context.Context
	opts         Options
	log          zerolog.Logger
	session      *sessionHolder
	account      model.AccountConfig
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	loginForm    loginform.Model
	mailboxes    maillist.Model
	messages     maillist.Model
	detail       detail.Model
	confirm      confirm.Model
	helpView     helpview.Model
	commandView  command.Model
	spinner      spinner.Model
	initCmd      tea.Cmd

	mailbox string
	offset  int
	loading bool
	status  string
	isError bool
	ready   bool
}

// New creates the root model. Server operations run under ctx.
func New(ctx context.Context, opts Options) Model {
	if opts.Browse.PageSize <= 0 {
		opts.Browse.PageSize = mailclient.DefaultPageSize
	}
	k := keys.DefaultKeyMap()

	mailboxes := maillist.New("Mailboxes", k, false, 80, 22)
	mailboxes.SetEmptyText("No mailboxes.")
	messages := maillist.New("Messages", k, true, 80, 22)
	messages.SetEmptyText("No messages.")

	m := Model{
		ctx:         ctx,
		opts:        opts,
		log:         opts.Logger,
		session:     &sessionHolder{},
		account:     opts.Account,
		keys:        k,
		loginForm:   loginform.New(80, 24),
		mailboxes:   mailboxes,
		messages:    messages,
		detail:      detail.New(k, 80, 22),
		confirm:     confirm.New(80, 22),
		helpView:    helpview.New(k, 80, 22),
		commandView: command.New(80, 22),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.currentView = m.initialView()
	if m.currentView == ViewLogin {
		m.initCmd = m.loginForm.Start(m.account, "")
	}
	return m
}

// Close logs out of the session, if one was opened. It is safe to call
// after the program has exited and more than once.
func (m Model) Close(ctx context.Context) error {
	return m.session.close(ctx)
}

// Init tries the configured credentials, or opens the login form.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewConnecting {
		return tea.Batch(m.spinner.Tick, m.connect(m.account, m.opts.Password, false))
	}
	return m.initCmd
}

func (m Model) initialView() ViewState {
	if m.account.Host != "" && m.account.Username != "" && m.opts.Password != "" {
		return ViewConnecting
	}
	return ViewLogin
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.loginForm.SetSize(w, h)
		m.mailboxes.SetSize(w, h)
		m.messages.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.confirm.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case spinner.TickMsg:
		if !m.loading && m.currentView != ViewConnecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginform.SubmitMsg:
		m.account = msg.Account
		m.currentView = ViewConnecting
		return m, tea.Batch(m.spinner.Tick, m.connect(msg.Account, msg.Password, msg.Remember))

	case loginform.CancelMsg:
		return m, tea.Quit

	case connectedMsg:
		return m.handleConnected(msg)

	case mailboxesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError("Listing mailboxes", msg.err)
			return m, nil
		}
		items := make([]model.ListItem, len(msg.mailboxes))
		for i, mb := range msg.mailboxes {
			items[i] = mb
		}
		return m, m.mailboxes.SetItems(items)

	case messagesLoadedMsg:
		return m.handleMessagesLoaded(msg)

	case maillist.SelectedMsg:
		return m.handleSelected(msg)

	case maillist.PageMsg:
		next := m.offset + msg.Delta*m.opts.Browse.PageSize
		if next < 0 {
			m.setStatus("Already at the newest messages")
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadMessages(m.mailbox, next))

	case maillist.RefreshMsg:
		return m, m.refresh()

	case maillist.ActionMsg:
		if msg.Action == maillist.ActionDelete {
			m.previousView = m.currentView
			m.currentView = ViewConfirm
			return m, m.confirm.Start(msg.Message)
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.mutate(msg.Action, msg.Message))

	case confirm.ResultMsg:
		m.currentView = m.previousView
		if !msg.Confirmed {
			m.setStatus("Delete cancelled")
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.mutate(maillist.ActionDelete, msg.Message))

	case mutatedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError("Could not "+msg.action.String(), msg.err)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Message %s: %s done", msg.message.ID, msg.action))
		return m, m.loadMessages(m.mailbox, m.offset)

	case messageErrMsg:
		m.loading = false
		m.currentView = ViewMessages
		m.setError("Opening message", msg.err)
		return m, nil

	case detail.MessageLoadedMsg:
		m.loading = false
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewMessages
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.runCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case loggedOutMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("Logout failed")
		}
		return m, tea.Quit

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKeys(msg); handled {
			return m, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work across the browsing views.
// Forms and dialogs receive every key except ctrl+c.
func (m *Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}

	switch m.currentView {
	case ViewLogin, ViewConfirm, ViewCommand:
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true

	case key.Matches(msg, m.keys.Command):
		if m.session.get() == nil || m.currentView == ViewHelp {
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Back):
		switch m.currentView {
		case ViewHelp:
			m.currentView = m.previousView
			return nil, true
		case ViewMessages:
			m.currentView = ViewMailboxes
			m.status = ""
			return m.refresh(), true
		}
	}
	return nil, false
}

// runCommand executes a command entered at the ":" prompt.
func (m Model) runCommand(msg command.CommandMsg) (tea.Model, tea.Cmd) {
	switch msg.Name {
	case command.Open:
		return m.handleSelected(maillist.SelectedMsg{Item: model.MailboxSummary{Name: msg.Arg}})
	case command.Page:
		if m.mailbox == "" {
			m.setStatus("Open a mailbox first")
			return m, nil
		}
		m.currentView = ViewMessages
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadMessages(m.mailbox, (msg.N-1)*m.opts.Browse.PageSize))
	case command.Refresh:
		return m, m.refresh()
	case command.Quit:
		return m, m.quit()
	}
	return m, nil
}

func (m *Model) quit() tea.Cmd {
	if m.session.get() == nil {
		return tea.Quit
	}
	m.setStatus("Logging out...")
	return m.logout()
}

func (m Model) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.currentView = ViewLogin
		errText := "Login failed: " + msg.err.Error()
		if mailclient.IsInvalidCredentials(msg.err) {
			errText = fmt.Sprintf("Invalid credentials for %s. Try again or press ctrl+c to quit.", msg.account.Username)
		}
		m.log.Warn().Err(msg.err).Str("host", msg.account.Host).Msg("Login failed")
		return m, m.loginForm.Start(msg.account, errText)
	}

	m.session.set(msg.mailer)
	m.account = msg.account
	if msg.remember && m.opts.Credentials != nil {
		if err := m.opts.Credentials.SetPassword(msg.account.Username, msg.account.Host, msg.password); err != nil {
			m.log.Warn().Err(err).Msg("Saving password to keyring failed")
			m.setError("Saving password", err)
		}
	}

	m.currentView = ViewMailboxes
	m.loading = true
	return m, m.loadMailboxes()
}

func (m Model) handleSelected(msg maillist.SelectedMsg) (tea.Model, tea.Cmd) {
	switch item := msg.Item.(type) {
	case model.MailboxSummary:
		m.mailbox = item.Name
		m.offset = 0
		m.messages.SetTitle(item.Name)
		m.messages.SetItems(nil)
		m.messages.ResetCursor()
		m.currentView = ViewMessages
		m.loading = true
		m.status = ""
		return m, tea.Batch(m.spinner.Tick, m.loadMessages(item.Name, 0))

	case model.MessageSummary:
		m.currentView = ViewMessage
		m.detail.SetLoading(true)
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadMessage(item.MessageRef))
	}
	return m, nil
}

func (m Model) handleMessagesLoaded(msg messagesLoadedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.mailbox != m.mailbox {
		return m, nil
	}
	if msg.err != nil {
		m.setError("Listing "+msg.mailbox, msg.err)
		return m, nil
	}
	if len(msg.messages) == 0 && msg.offset > 0 {
		if msg.offset > m.offset {
			m.setStatus("No older messages")
			return m, nil
		}
		// The current page emptied, e.g. after deleting its last message.
		m.offset = max(msg.offset-m.opts.Browse.PageSize, 0)
		return m, m.loadMessages(m.mailbox, m.offset)
	}
	if msg.offset != m.offset {
		m.messages.ResetCursor()
	}
	m.offset = msg.offset

	items := make([]model.ListItem, len(msg.messages))
	for i, s := range msg.messages {
		items[i] = s
	}
	return m, m.messages.SetItems(items)
}

func (m *Model) refresh() tea.Cmd {
	if m.session.get() == nil {
		return nil
	}
	m.loading = true
	switch m.currentView {
	case ViewMessages:
		return tea.Batch(m.spinner.Tick, m.loadMessages(m.mailbox, m.offset))
	default:
		return tea.Batch(m.spinner.Tick, m.loadMailboxes())
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.isError = false
}

func (m *Model) setError(what string, err error) {
	m.isError = true
	m.status = what + ": " + err.Error()
	if errors.Is(err, mailclient.ErrSessionClosed) {
		m.status = "Session closed, restart to reconnect"
	}
	m.log.Error().Err(err).Msg(what)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginForm, cmd = m.loginForm.Update(msg)
	case ViewMailboxes:
		m.mailboxes, cmd = m.mailboxes.Update(msg)
	case ViewMessages:
		m.messages, cmd = m.messages.Update(msg)
	case ViewMessage:
		m.detail, cmd = m.detail.Update(msg)
	case ViewConfirm:
		m.confirm, cmd = m.confirm.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.location())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), ui.Status{Text: m.status, IsError: m.isError})
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// location describes the header for the current view. Overlays such as
// help keep the location of the view they cover.
func (m Model) location() ui.Location {
	loc := ui.Location{}
	if m.account.Username != "" {
		loc.Account = m.account.Username + "@" + m.account.Host
	}
	if m.loading {
		loc.Busy = m.spinner.View()
	}

	view := m.currentView
	if view == ViewHelp || view == ViewCommand {
		view = m.previousView
	}
	switch view {
	case ViewMessages, ViewMessage, ViewConfirm:
		loc.Mailbox = m.mailbox
		loc.Page = m.offset/m.opts.Browse.PageSize + 1
		if !mailclient.IsDefaultCriterion(m.opts.Browse.Criterion) {
			loc.Criterion = strings.ToUpper(strings.TrimSpace(m.opts.Browse.Criterion))
		}
	}
	return loc
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginForm.View()
	case ViewConnecting:
		return lipgloss.NewStyle().
			Width(m.layout.ContentWidth()).
			Height(m.layout.ContentHeight()).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(m.spinner.View() + " Connecting to " + m.account.Host + "...")
	case ViewMailboxes:
		return m.mailboxes.View()
	case ViewMessages:
		return m.messages.View()
	case ViewMessage:
		return m.detail.View()
	case ViewConfirm:
		return m.confirm.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter next | ctrl+c quit"
	case ViewConnecting:
		return "ctrl+c quit"
	case ViewMessages:
		return "enter open | s seen/unseen | d delete | n/p page | r refresh | esc back | q quit"
	case ViewMessage:
		return "j/k scroll | esc back | q quit"
	case ViewConfirm:
		return "y/n answer | enter confirm"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter run | esc cancel"
	default:
		return "enter open | r refresh | : command | ? help | q quit"
	}
}
