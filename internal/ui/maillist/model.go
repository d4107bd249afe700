// Package maillist is the list view shared by the mailbox and message
// screens. It renders model.ListItem labels and turns key presses into
// messages for the parent model; it never talks to the server itself.
package maillist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/keys"
	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
)

// Action is a message context action requested from the list.
type Action int

const (
	ActionMarkSeen Action = iota
	ActionMarkUnseen
	ActionDelete
)

// String returns a short verb for status messages.
func (a Action) String() string {
	switch a {
	case ActionMarkSeen:
		return "mark seen"
	case ActionMarkUnseen:
		return "mark unseen"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SelectedMsg is sent when the user opens the focused item.
type SelectedMsg struct {
	Item model.ListItem
}

// ActionMsg is sent when the user requests an action on a message.
type ActionMsg struct {
	Action  Action
	Message model.MessageSummary
}

// PageMsg is sent when the user moves between pages. Delta is +1 for the
// next (older) page and -1 for the previous one.
type PageMsg struct {
	Delta int
}

// RefreshMsg is sent when the user asks to reload the list.
type RefreshMsg struct{}

// Model is a list of mailboxes or messages.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	paged  bool
	empty  string
	width  int
	height int
}

// New creates a list model. Paged lists react to the page keys.
func New(title string, k *keys.KeyMap, paged bool, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		paged:  paged,
		empty:  "Nothing here.",
		width:  width,
		height: height,
	}
}

// SetItems replaces the list contents and keeps the cursor in range.
func (m *Model) SetItems(items []model.ListItem) tea.Cmd {
	wrapped := make([]list.Item, len(items))
	for i, it := range items {
		wrapped[i] = ListItemWrapper{Item: it}
	}
	idx := m.list.Index()
	cmd := m.list.SetItems(wrapped)
	if idx >= len(wrapped) {
		idx = len(wrapped) - 1
	}
	if idx >= 0 {
		m.list.Select(idx)
	}
	return cmd
}

// SetTitle changes the list title.
func (m *Model) SetTitle(title string) {
	m.list.Title = title
}

// SetEmptyText sets the text shown when the list has no items.
func (m *Model) SetEmptyText(text string) {
	m.empty = text
}

// ResetCursor moves the cursor to the first item.
func (m *Model) ResetCursor() {
	m.list.ResetSelected()
}

// Len returns the number of items.
func (m Model) Len() int {
	return len(m.list.Items())
}

// SelectedItem returns the focused item.
func (m Model) SelectedItem() (model.ListItem, bool) {
	w, ok := m.list.SelectedItem().(ListItemWrapper)
	if !ok {
		return nil, false
	}
	return w.Item, true
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if cmd, handled := m.handleKeys(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.SelectedItem()
		if !ok {
			return nil, true
		}
		return func() tea.Msg { return SelectedMsg{Item: item} }, true

	case key.Matches(msg, m.keys.Refresh):
		return func() tea.Msg { return RefreshMsg{} }, true

	case m.paged && key.Matches(msg, m.keys.NextPage):
		return func() tea.Msg { return PageMsg{Delta: 1} }, true

	case m.paged && key.Matches(msg, m.keys.PrevPage):
		return func() tea.Msg { return PageMsg{Delta: -1} }, true

	case key.Matches(msg, m.keys.ToggleSeen):
		sum, ok := m.selectedMessage()
		if !ok {
			return nil, true
		}
		action := ActionMarkUnseen
		if sum.Unseen {
			action = ActionMarkSeen
		}
		return func() tea.Msg { return ActionMsg{Action: action, Message: sum} }, true

	case key.Matches(msg, m.keys.Delete):
		sum, ok := m.selectedMessage()
		if !ok {
			return nil, true
		}
		return func() tea.Msg { return ActionMsg{Action: ActionDelete, Message: sum} }, true
	}
	return nil, false
}

func (m Model) selectedMessage() (model.MessageSummary, bool) {
	item, ok := m.SelectedItem()
	if !ok {
		return model.MessageSummary{}, false
	}
	sum, ok := item.(model.MessageSummary)
	return sum, ok
}

// View renders the list.
func (m Model) View() string {
	if m.Len() == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(m.list.Title + "\n\n" + m.empty)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
