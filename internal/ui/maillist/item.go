package maillist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailbrowse/internal/model"
	"github.com/nhle/mailbrowse/internal/theme"
)

// ListItemWrapper wraps a model.ListItem so it can be used in a bubbles/list.
type ListItemWrapper struct {
	Item model.ListItem
}

// FilterValue returns the string used for fuzzy filtering.
func (w ListItemWrapper) FilterValue() string {
	return w.Item.Label()
}

// ItemDelegate implements list.ItemDelegate for mailboxes and messages.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	wrapper, ok := item.(ListItemWrapper)
	if !ok {
		return
	}
	fmt.Fprint(w, renderLine(wrapper.Item, index == m.Index()))
}

func renderLine(li model.ListItem, isSelected bool) string {
	var line string
	switch v := li.(type) {
	case model.MessageSummary:
		line = theme.SenderStyle.Render(model.SenderName(v.From)) +
			" - " + model.CleanSubject(v.Subject)
	default:
		line = li.Label()
	}

	marker := " "
	if li.IsUnseen() {
		marker = "●"
		line = theme.UnseenStyle.Render(line)
	}
	line = marker + " " + line

	if isSelected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}
