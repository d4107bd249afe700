package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

func TestBreadcrumb(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{"mailbox list", Location{Account: "alice@imap.example.org"}, "mailbrowse"},
		{"first page", Location{Mailbox: "INBOX", Page: 1}, "mailbrowse › INBOX · page 1"},
		{"filtered", Location{Mailbox: "Archive/2024", Page: 3, Criterion: "UNSEEN"}, "mailbrowse › Archive/2024 · page 3 · UNSEEN"},
		{"busy", Location{Mailbox: "INBOX", Page: 1, Busy: "⣾"}, "mailbrowse › INBOX · page 1 ⣾"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.Breadcrumb())
		})
	}
}

func TestRenderHeaderKeepsAccountWhenNarrow(t *testing.T) {
	l := NewLayout(40, 10)
	out := ansi.Strip(l.RenderHeader(Location{
		Account: "alice@imap.example.org",
		Mailbox: "Projects/Very long mailbox name",
		Page:    12,
	}))

	assert.Equal(t, 40, lipgloss.Width(out))
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, " "), "alice@imap.example.org"))
	assert.Contains(t, out, "mailbrowse")
}

func TestRenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(80, 10)
	out := ansi.Strip(l.RenderHeader(Location{Mailbox: "INBOX", Page: 2}))

	assert.Equal(t, 80, lipgloss.Width(out))
	assert.Contains(t, out, "mailbrowse › INBOX · page 2")
}

func TestRenderStatusBarPrefersStatus(t *testing.T) {
	l := NewLayout(80, 10)

	assert.Contains(t, ansi.Strip(l.RenderStatusBar("q quit", Status{})), "q quit")

	out := ansi.Strip(l.RenderStatusBar("q quit", Status{Text: "Deleted 1 message"}))
	assert.Contains(t, out, "Deleted 1 message")
	assert.NotContains(t, out, "q quit")

	out = ansi.Strip(l.RenderStatusBar("q quit", Status{Text: "Fetching: timeout", IsError: true}))
	assert.Contains(t, out, "Fetching: timeout")
}

func TestContentHeight(t *testing.T) {
	assert.Equal(t, 8, NewLayout(80, 10).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}
