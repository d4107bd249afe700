// Package mailclient is an IMAP client session: login and logout, mailbox
// selection, message listing and header fetch, and flag changes.
//
// A Session owns one connection and remembers the selected mailbox.
// Operations that take a mailbox argument select it first when it differs
// from the current selection; an empty mailbox means "the selected one".
package mailclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-sasl"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbrowse/internal/imapwire"
)

const (
	// DefaultCriterion selects every message not flagged \Deleted.
	DefaultCriterion = "UNDELETED"

	// DefaultPageSize is used by GetMessages for a non-positive limit.
	DefaultPageSize = 10

	defaultTLSPort   = 993
	defaultPlainPort = 143

	closeTimeout = 10 * time.Second
)

// IDKind selects how messages are addressed.
type IDKind int

const (
	// UIDs are stable across expunges of other messages.
	UIDs IDKind = iota
	// SequenceNumbers are renumbered by every expunge.
	SequenceNumbers
)

// Options configures Authenticate. The zero value is usable.
type Options struct {
	// Port is used when host carries no port. Zero means 993 with TLS and
	// 143 without.
	Port int
	// Mechanism is "LOGIN" (default) or "PLAIN".
	Mechanism string
	IDKind    IDKind
	// Timeouts defaults to imapwire.DefaultTimeouts when zero.
	Timeouts  imapwire.Timeouts
	TLSConfig *tls.Config
	Logger    *zerolog.Logger
}

// Session is an authenticated IMAP session. Its methods are safe for
// concurrent use; they are serialized since the protocol is.
type Session struct {
	mu       sync.Mutex
	conn     *imapwire.Conn
	log      zerolog.Logger
	useUID   bool
	timeout  time.Duration
	state    imap.ConnState
	selected string
}

// Authenticate connects to host and logs in. host may include a port.
//
// A login rejected for bad credentials fails with an
// *InvalidCredentialsError; every other failure, including network and
// greeting errors, is a *ProtocolError. The connection is closed on
// failure.
func Authenticate(
	ctx context.Context,
	username, password, host string,
	useSSL bool,
	opts *Options,
) (*Session, error) {
	if opts == nil {
		opts = &Options{}
	}
	timeouts := opts.Timeouts
	if timeouts == (imapwire.Timeouts{}) {
		timeouts = imapwire.DefaultTimeouts()
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	addr := address(host, useSSL, opts.Port)
	log = log.With().
		Str("session", uuid.NewString()).
		Str("addr", addr).
		Logger()

	log.Debug().Bool("tls", useSSL).Msg("Connecting to IMAP server")
	conn, err := imapwire.Dial(ctx, addr, useSSL, &imapwire.Options{
		TLSConfig: opts.TLSConfig,
		Timeouts:  timeouts,
		Logger:    &log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Connecting failed")
		return nil, &ProtocolError{Op: "connect", Err: err}
	}

	s := &Session{
		conn:    conn,
		log:     log,
		useUID:  opts.IDKind == UIDs,
		timeout: timeouts.Command,
		state:   imap.ConnStateNotAuthenticated,
	}
	if s.timeout <= 0 {
		s.timeout = closeTimeout
	}

	if conn.Greeting() == imap.StatusResponseTypePreAuth {
		log.Debug().Msg("Server greeted with PREAUTH, skipping login")
	} else if err := s.login(ctx, username, password, opts.Mechanism); err != nil {
		_ = conn.Close()
		log.Warn().Err(err).Str("username", username).Msg("IMAP authentication failed")
		return nil, err
	}

	s.state = imap.ConnStateAuthenticated
	log.Info().Str("username", username).Msg("Logged in")
	return s, nil
}

func (s *Session) login(ctx context.Context, username, password, mechanism string) error {
	var err error
	switch strings.ToUpper(mechanism) {
	case "", "LOGIN":
		_, err = s.conn.Execute(ctx, "LOGIN", imapwire.Quote(username), imapwire.Quote(password))
	case sasl.Plain:
		_, err = s.conn.Authenticate(ctx, sasl.NewPlainClient("", username, password))
	default:
		return &ProtocolError{Op: "login", Err: fmt.Errorf("unsupported mechanism %q", mechanism)}
	}
	if err == nil {
		return nil
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) && isCredentialFailure(imapErr) {
		return &InvalidCredentialsError{Username: username, Err: imapErr}
	}
	return &ProtocolError{Op: "login", Err: err}
}

func address(host string, useSSL bool, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if port <= 0 {
		port = defaultPlainPort
		if useSSL {
			port = defaultTLSPort
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// State returns the protocol state of the session.
func (s *Session) State() imap.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selected returns the selected mailbox, or "" when none is.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Logout closes the selected mailbox, if any, and logs out. The
// connection is closed even when a step fails. Calling Logout again is a
// no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logout(ctx)
}

// Close logs out within a bounded time and releases the connection. It is
// meant for defer and is safe to call after Logout.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.logout(ctx)
}

func (s *Session) logout(ctx context.Context) (err error) {
	if s.state == imap.ConnStateLogout {
		return nil
	}

	defer func() {
		s.state = imap.ConnStateLogout
		s.selected = ""
		if cerr := s.conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing connection: %w", cerr))
		}
		s.log.Info().Err(err).Msg("Logged out")
	}()

	var errs []error
	if s.selected != "" {
		if _, err := s.conn.Execute(ctx, "CLOSE"); err != nil {
			errs = append(errs, fmt.Errorf("closing mailbox %s: %w", s.selected, err))
		}
	}
	if _, err := s.conn.Execute(ctx, "LOGOUT"); err != nil {
		errs = append(errs, fmt.Errorf("logging out: %w", err))
	}
	return errors.Join(errs...)
}

// ensureSelected selects mailbox when it is set and differs from the
// current selection, then requires some mailbox to be selected.
func (s *Session) ensureSelected(ctx context.Context, mailbox string) error {
	if s.state == imap.ConnStateLogout {
		return ErrSessionClosed
	}
	if mailbox != "" && mailbox != s.selected {
		if _, err := s.selectMailbox(ctx, mailbox); err != nil {
			return err
		}
	}
	if s.selected == "" {
		return ErrNoMailboxSelected
	}
	return nil
}

// command sends a message-addressing command, in its UID form when the
// session uses UIDs.
func (s *Session) command(ctx context.Context, name string, args ...string) (*imapwire.Response, error) {
	if s.useUID {
		name = "UID " + name
	}
	return s.conn.Execute(ctx, name, args...)
}

func checkID(id string) error {
	if _, err := strconv.ParseUint(id, 10, 32); err != nil || id == "0" {
		return fmt.Errorf("invalid message id %q", id)
	}
	return nil
}
