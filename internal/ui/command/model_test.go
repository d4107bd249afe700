package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		line string
		want CommandMsg
	}{
		{"open Archive", CommandMsg{Name: Open, Arg: "Archive"}},
		{"  cd  Sent Items ", CommandMsg{Name: Open, Arg: "Sent Items"}},
		{"page 3", CommandMsg{Name: Page, N: 3}},
		{"REFRESH", CommandMsg{Name: Refresh}},
		{"q", CommandMsg{Name: Quit}},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, err := Parse(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{"", "open", "page 0", "page x", "fly"} {
		_, err := Parse(line)
		assert.Error(t, err, line)
	}
}

func TestEnterEmitsCommand(t *testing.T) {
	m := New(80, 10)
	m.Focus()
	m.input.SetValue("open INBOX")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: Open, Arg: "INBOX"}, cmd())
	assert.Empty(t, m.input.Value())
}

func TestEnterShowsParseError(t *testing.T) {
	m := New(80, 10)
	m.input.SetValue("fly")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), `unknown command "fly"`)
}

func TestEscCancels(t *testing.T) {
	m := New(80, 10)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}
