package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, HeaderPlaceholder, DecodeHeader(""))
	assert.Equal(t, HeaderPlaceholder, DecodeHeader("   "))
	assert.Equal(t, "Hello", DecodeHeader("Hello"))
	assert.Equal(t, "Grüße aus Köln", DecodeHeader("=?UTF-8?Q?Gr=C3=BC=C3=9Fe_aus_K=C3=B6ln?="))
	assert.Equal(t, "Café", DecodeHeader("=?ISO-8859-1?Q?Caf=E9?="))
	assert.Equal(t, "Hello World", DecodeHeader("=?UTF-8?B?SGVsbG8=?= World"))
}

func TestDecodeHeaderKeepsUndecodable(t *testing.T) {
	raw := "=?X-UNKNOWN?Q?abc?="
	assert.Equal(t, raw, DecodeHeader(raw))
}

func TestParseHeaderBlock(t *testing.T) {
	raw := "From: \"Alice\" <alice@example.org>\r\n" +
		"Subject: =?UTF-8?Q?caf=C3=A9?=\r\n"

	h, err := ParseHeaderBlock([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, `"Alice" <alice@example.org>`, h.Get("From"))
	assert.Equal(t, "café", DecodeHeader(h.Get("Subject")))
}

func TestParseHeaderBlockWithTerminator(t *testing.T) {
	h, err := ParseHeaderBlock([]byte("Subject: hi\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hi", h.Get("Subject"))
}

func TestParseHeaderBlockEmpty(t *testing.T) {
	h, err := ParseHeaderBlock(nil)
	require.NoError(t, err)
	assert.Empty(t, h.Get("From"))
}
