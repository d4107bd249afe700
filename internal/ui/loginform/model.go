// Package loginform is the account login form shown at startup and after
// the server rejects the credentials.
package loginform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
)

// SubmitMsg is dispatched when the user submits the form.
type SubmitMsg struct {
	Account  model.AccountConfig
	Password string
	// Remember asks for the password to be saved in the keyring.
	Remember bool
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	host     string
	username string
	password string
	useSSL   bool
	remember bool
}

// Model is the Bubble Tea model for the login form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	account model.AccountConfig
	errText string
	width   int
	height  int
}

// New creates a new login form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{useSSL: true, remember: true},
		width:  width,
		height: height,
	}
}

// Start initializes the form from account, showing errText above the
// fields when it is set. The password field always starts empty.
func (m *Model) Start(account model.AccountConfig, errText string) tea.Cmd {
	m.account = account
	m.errText = errText
	m.fb.host = account.Host
	m.fb.username = account.Username
	m.fb.password = ""
	m.fb.useSSL = account.UseSSL
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the login form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Sign in")
	if m.errText != "" {
		content += "\n" + theme.ErrorStyle.Render(m.errText)
	}
	content += "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server").
				Placeholder("imap.example.org").
				Value(&m.fb.host).
				Validate(validateRequired("Server")),
			huh.NewInput().
				Title("Username").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Value(&m.fb.useSSL),
			huh.NewConfirm().
				Title("Remember password").
				Value(&m.fb.remember),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	account := m.account
	account.Host = strings.TrimSpace(m.fb.host)
	account.Username = strings.TrimSpace(m.fb.username)
	account.UseSSL = m.fb.useSSL

	msg := SubmitMsg{
		Account:  account,
		Password: m.fb.password,
		Remember: m.fb.remember,
	}
	return func() tea.Msg { return msg }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
