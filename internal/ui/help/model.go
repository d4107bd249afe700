// Package help renders the key and command reference overlay.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/keys"
	"github.com/nhle/mailbrowse/internal/theme"
)

// promptCommands documents the ":" prompt next to the key bindings.
var promptCommands = []string{
	"open <mailbox>   jump to a mailbox",
	"page <n>         show page n of the open mailbox",
	"refresh          reload the current list",
	"quit             log out and exit",
}

const columnGap = 4

var sectionTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(theme.ColorWhite)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	return Model{
		keys:   keys,
		help:   help.New(),
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders one column per key section followed by the prompt
// commands. Columns stack when the terminal is too narrow for them.
func (m Model) View() string {
	var columns []string
	for _, s := range m.keys.Sections() {
		columns = append(columns, m.section(s.Title, s.Bindings))
	}
	columns = append(columns, sectionTitleStyle.Render("Commands (:)")+"\n"+
		lipgloss.NewStyle().Foreground(theme.ColorGray).Render(strings.Join(promptCommands, "\n")))

	inner := m.width - 4
	room := inner - theme.DetailPanelStyle.GetHorizontalPadding()
	content := lipgloss.JoinVertical(lipgloss.Left, columns...)
	if keysRow := joinColumns(columns[:len(columns)-1]); lipgloss.Width(keysRow) <= room {
		content = lipgloss.JoinVertical(lipgloss.Left, keysRow, "", columns[len(columns)-1])
	}

	return theme.DetailPanelStyle.
		Width(inner).
		Height(m.height - 4).
		Render(content)
}

func (m Model) section(title string, bindings []key.Binding) string {
	return sectionTitleStyle.Render(title) + "\n" +
		m.help.FullHelpView([][]key.Binding{bindings})
}

func joinColumns(columns []string) string {
	gap := strings.Repeat(" ", columnGap)
	parts := make([]string, 0, 2*len(columns))
	for i, c := range columns {
		if i > 0 {
			parts = append(parts, gap)
		}
		parts = append(parts, c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
