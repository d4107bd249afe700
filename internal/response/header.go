package response

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// HeaderPlaceholder is shown instead of an empty header value so list
// labels never come out blank.
const HeaderPlaceholder = "FIXME"

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes RFC 2047 encoded words in a header value. Values that
// cannot be decoded are returned as received.
func DecodeHeader(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return HeaderPlaceholder
	}
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ParseHeaderBlock reads the header fields of a BODY[HEADER] literal. The
// block does not need to carry its terminating empty line.
func ParseHeaderBlock(raw []byte) (mail.Header, error) {
	r := bufio.NewReader(io.MultiReader(bytes.NewReader(raw), strings.NewReader("\r\n\r\n")))
	h, err := textproto.ReadHeader(r)
	if err != nil {
		return mail.Header{}, fmt.Errorf("reading header block: %w", err)
	}
	return mail.Header{Header: message.Header{Header: h}}, nil
}
