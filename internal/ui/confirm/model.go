// Package confirm is a yes/no dialog guarding destructive message actions.
package confirm

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
)

// ResultMsg is dispatched when the dialog closes. Confirmed is false when
// the user declined or aborted.
type ResultMsg struct {
	Confirmed bool
	Message   model.MessageSummary
}

// Model is the confirmation dialog.
type Model struct {
	form    *huh.Form
	answer  *bool
	message model.MessageSummary
	width   int
	height  int
}

// New creates a confirmation dialog model.
func New(width, height int) Model {
	return Model{answer: new(bool), width: width, height: height}
}

// Start asks whether msg should be deleted.
func (m *Model) Start(msg model.MessageSummary) tea.Cmd {
	m.message = msg
	*m.answer = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete this message?").
				Description(msg.Label()).
				Affirmative("Delete").
				Negative("Cancel").
				Value(m.answer),
		),
	).WithWidth(min(max(m.width-4, 30), 80))
	return m.form.Init()
}

// Update handles messages for the dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		res := ResultMsg{Confirmed: *m.answer, Message: m.message}
		m.form = nil
		return m, func() tea.Msg { return res }
	case huh.StateAborted:
		res := ResultMsg{Message: m.message}
		m.form = nil
		return m, func() tea.Msg { return res }
	}
	return m, cmd
}

// View renders the dialog centered in the content area.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(theme.DetailPanelStyle.Render(m.form.View()))
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
