// Package response turns raw IMAP untagged response lines into records.
// Every function is pure: no state and no I/O. Lines are expected with the
// leading "* " and the response keyword already removed, as produced by
// imapwire.Response.Untagged.
package response

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is matched by every *MalformedError.
var ErrMalformedResponse = errors.New("malformed response")

// MalformedError reports a server line that does not follow the grammar
// expected for its kind.
type MalformedError struct {
	Kind string
	Line string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s response: %q", e.Kind, e.Line)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedResponse
}
