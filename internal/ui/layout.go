package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbrowse/internal/theme"
)

const appName = "mailbrowse"

// Layout splits the terminal into a header line, the active view and a
// status line.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the width of the active view.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active view.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// Location is where the user is in the account, as shown in the header.
type Location struct {
	Account string
	// Mailbox is empty on the mailbox list.
	Mailbox string
	// Page counts from 1; zero hides it.
	Page int
	// Criterion is shown when the list is filtered.
	Criterion string
	// Busy is a spinner frame shown while a request runs.
	Busy string
}

// Breadcrumb renders the left side of the header, for example
// "mailbrowse › INBOX · page 2 · UNSEEN".
func (loc Location) Breadcrumb() string {
	var b strings.Builder
	b.WriteString(appName)
	if loc.Mailbox != "" {
		b.WriteString(" › " + loc.Mailbox)
	}
	if loc.Page > 0 {
		b.WriteString(" · page " + strconv.Itoa(loc.Page))
	}
	if loc.Criterion != "" {
		b.WriteString(" · " + loc.Criterion)
	}
	if loc.Busy != "" {
		b.WriteString(" " + loc.Busy)
	}
	return b.String()
}

// RenderHeader renders the breadcrumb on the left and the account on the
// right. The breadcrumb is cut to fit before the account is.
func (l Layout) RenderHeader(loc Location) string {
	var account string
	if loc.Account != "" {
		account = theme.HeaderStyle.Render(loc.Account)
	}
	room := max(l.Width-lipgloss.Width(account), 0)
	crumb := theme.HeaderStyle.MaxWidth(room).Render(loc.Breadcrumb())
	return fillLine(theme.HeaderStyle, l.Width, crumb, account)
}

// Status is a one-line outcome of the last action.
type Status struct {
	Text    string
	IsError bool
}

// RenderStatusBar renders st when it is set and the key hints otherwise.
func (l Layout) RenderStatusBar(hints string, st Status) string {
	text := theme.StatusBarStyle.Render(hints)
	switch {
	case st.Text == "":
	case st.IsError:
		text = theme.StatusBarStyle.Render(theme.ErrorStyle.Render(st.Text))
	default:
		text = theme.StatusBarStyle.Render(theme.SuccessStyle.Render(st.Text))
	}
	return fillLine(theme.StatusBarStyle, l.Width, text, "")
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// fillLine places left and right at the edges of a line of width, padding
// the middle with the background of style.
func fillLine(style lipgloss.Style, width int, left, right string) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	pad := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, pad, right)
}
