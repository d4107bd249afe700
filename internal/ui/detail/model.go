package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/keys"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
)

// BackMsg signals the parent to navigate back to the message list.
type BackMsg struct{}

// MessageLoadedMsg carries a fetched message to the view.
type MessageLoadedMsg struct {
	Message *model.Message
}

// Model is the message view: a header block above the body text in a
// scrollable viewport.
type Model struct {
	message  *model.Message
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new message view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the message view.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetLoading shows the loading placeholder until a message arrives.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	if loading {
		m.message = nil
	}
}

// Message returns the displayed message, or nil.
func (m Model) Message() *model.Message {
	return m.message
}

// Update handles messages for the message view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessageLoadedMsg:
		m.message = msg.Message
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return BackMsg{} }
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the message view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return placeholder.Render("Loading message...")
	}
	if m.message == nil {
		return placeholder.Render("No message selected")
	}
	return m.viewport.View()
}

// renderContent builds the header block and body for the viewport.
func (m Model) renderContent() string {
	if m.message == nil {
		return ""
	}
	msg := m.message

	var sections []string
	for _, f := range []struct{ name, value string }{
		{"From", msg.From},
		{"To", msg.To},
		{"Date", msg.DisplayDate()},
		{"Subject", model.CleanSubject(msg.Subject)},
	} {
		sections = append(sections, fmt.Sprintf(
			"%s %s",
			theme.HeaderFieldStyle.Render(fmt.Sprintf("%-8s", f.name+":")),
			f.value,
		))
	}

	separator := lipgloss.NewStyle().
		Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := msg.BodyText
	if strings.TrimSpace(body) == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No text content")
	} else if m.width > 0 {
		body = lipgloss.NewStyle().Width(m.width).Render(body)
	}
	sections = append(sections, body)

	return strings.Join(sections, "\n")
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	if m.message != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
