package mailclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

var (
	// ErrInvalidCredentials is matched by every *InvalidCredentialsError.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoMailboxSelected is returned by mailbox-scoped operations called
	// without a mailbox while none is selected.
	ErrNoMailboxSelected = errors.New("no mailbox selected")

	// ErrSessionClosed is returned by operations on a logged out session.
	ErrSessionClosed = errors.New("session closed")

	// ErrMessageNotFound is returned when the server has no message with
	// the requested id in the selected mailbox.
	ErrMessageNotFound = errors.New("message not found")
)

// InvalidCredentialsError reports that the server rejected the username or
// password. The caller may ask for new credentials and try again.
type InvalidCredentialsError struct {
	Username string
	Err      error
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials for %s: %v", e.Username, e.Err)
}

func (e *InvalidCredentialsError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidCredentials) hold.
func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// ProtocolError reports a failure to establish a session for any reason
// other than bad credentials: network, TLS, greeting or server errors.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsInvalidCredentials reports whether err (or any error in its chain) is
// an InvalidCredentialsError.
func IsInvalidCredentials(err error) bool {
	var credErr *InvalidCredentialsError
	return errors.As(err, &credErr)
}

// IsProtocolError reports whether err (or any error in its chain) is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// isCredentialFailure classifies a rejected login.
func isCredentialFailure(err *imap.Error) bool {
	if err.Type != imap.StatusResponseTypeNo && err.Type != imap.StatusResponseTypeBad {
		return false
	}
	if err.Code == imap.ResponseCodeAuthenticationFailed {
		return true
	}
	return strings.Contains(strings.ToLower(err.Text), "credentials")
}
