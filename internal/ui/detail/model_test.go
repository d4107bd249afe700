package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrowse/internal/keys"
	"github.com/nhle/mailbrowse/internal/model"
)

func TestRenderHeaderBlock(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetLoading(true)
	assert.Contains(t, m.View(), "Loading message...")

	m, _ = m.Update(MessageLoadedMsg{Message: &model.Message{
		From:     "Ada <ada@example.org>",
		To:       "bob@example.org",
		Date:     "Mon, 02 Jan 2006 15:04:05 +0000",
		Subject:  "Status\r\n report",
		BodyText: "All engines nominal.",
	}})

	out := m.renderContent()
	assert.Contains(t, out, "From:")
	assert.Contains(t, out, "Ada <ada@example.org>")
	assert.Contains(t, out, "bob@example.org")
	assert.Contains(t, out, "Mon, 02 Jan 2006 15:04:05 +0000")
	assert.Contains(t, out, "Status report")
	assert.Contains(t, out, "All engines nominal.")
	assert.NotNil(t, m.Message())
}

func TestRenderSentDate(t *testing.T) {
	sent := time.Date(2024, time.March, 9, 17, 30, 0, 0, time.UTC)
	m := New(keys.DefaultKeyMap(), 80, 20)
	m, _ = m.Update(MessageLoadedMsg{Message: &model.Message{
		Date: "Sat, 9 Mar 2024 17:30:00 +0000",
		Sent: sent,
	}})

	out := m.renderContent()
	assert.Contains(t, out, sent.Local().Format(model.DateLayout))
	assert.NotContains(t, out, "+0000")
}

func TestEmptyBody(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m, _ = m.Update(MessageLoadedMsg{Message: &model.Message{Subject: "x"}})
	assert.Contains(t, m.renderContent(), "No text content")
}

func TestBack(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}
