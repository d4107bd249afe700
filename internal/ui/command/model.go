// Package command is the ":" prompt for jumping to a mailbox or running a
// browsing action by name.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/theme"
)

// Name identifies a prompt command.
type Name string

const (
	Open    Name = "open"
	Page    Name = "page"
	Refresh Name = "refresh"
	Quit    Name = "quit"
)

// CommandMsg is emitted when the user enters a valid command.
type CommandMsg struct {
	Name Name
	// Arg is the mailbox for Open.
	Arg string
	// N is the one-based page number for Page.
	N int
}

// CancelMsg is emitted when the user leaves the prompt with esc.
type CancelMsg struct{}

// Parse reads a prompt line such as "open Archive/2024" or "page 3".
// Mailbox names may contain spaces.
func Parse(line string) (CommandMsg, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "open", "o", "cd":
		if arg == "" {
			return CommandMsg{}, fmt.Errorf("open needs a mailbox name")
		}
		return CommandMsg{Name: Open, Arg: arg}, nil
	case "page", "p":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return CommandMsg{}, fmt.Errorf("page needs a number from 1")
		}
		return CommandMsg{Name: Page, N: n}, nil
	case "refresh", "r":
		return CommandMsg{Name: Refresh}, nil
	case "quit", "q":
		return CommandMsg{Name: Quit}, nil
	case "":
		return CommandMsg{}, fmt.Errorf("empty command")
	default:
		return CommandMsg{}, fmt.Errorf("unknown command %q", name)
	}
}

// Model is the command prompt view.
type Model struct {
	input   textinput.Model
	errText string
	width   int
	height  int
}

// New creates a new command prompt model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "open <mailbox> | page <n> | refresh | quit"
	ti.Prompt = ": "
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command prompt.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEnter:
			parsed, err := Parse(m.input.Value())
			if err != nil {
				m.errText = err.Error()
				return m, nil
			}
			m.reset()
			return m, func() tea.Msg { return parsed }
		case tea.KeyEsc:
			m.reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) reset() {
	m.input.Reset()
	m.input.Blur()
	m.errText = ""
}

// View renders the command prompt.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command"), m.input.View()}
	if m.errText != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.errText))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command prompt dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
