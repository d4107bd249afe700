// Package imapwire is a minimal line-oriented IMAP transport. It sends
// tagged commands, collects the untagged lines that precede the tagged
// completion, and splices literals out of those lines. It does not
// interpret response data beyond the status line.
package imapwire

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
)

const (
	maxLineLength  = 1 << 20
	maxLiteralSize = 64 << 20
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("imapwire: connection closed")

// Timeouts bounds blocking network I/O. A zero duration disables the
// corresponding deadline.
type Timeouts struct {
	// Dial bounds connection setup including the TLS handshake.
	Dial time.Duration
	// Command bounds writing a command and reading its full response.
	Command time.Duration
	// Literal bounds reading a single literal payload.
	Literal time.Duration
}

// DefaultTimeouts returns timeouts suited to interactive IMAP use.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Dial:    30 * time.Second,
		Command: 45 * time.Second,
		Literal: 5 * time.Minute,
	}
}

// Options configures a Conn.
type Options struct {
	// TLSConfig is used when dialing with TLS. ServerName defaults to the
	// dialed host.
	TLSConfig *tls.Config
	Timeouts  Timeouts
	// Logger receives protocol traces at trace level. Credentials are
	// redacted.
	Logger *zerolog.Logger
}

// Conn is a single IMAP connection. It is not safe for concurrent use.
type Conn struct {
	conn     net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	timeouts Timeouts
	log      zerolog.Logger

	tagSeq   uint64
	greeting imap.StatusResponseType
	err      error
	closed   bool
}

// Dial connects to addr, over TLS when useTLS is set, and reads the
// server greeting.
func Dial(ctx context.Context, addr string, useTLS bool, opts *Options) (*Conn, error) {
	if opts == nil {
		opts = &Options{Timeouts: DefaultTimeouts()}
	}

	dialer := &net.Dialer{Timeout: opts.Timeouts.Dial}

	var (
		conn net.Conn
		err  error
	)
	if useTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    tlsConfig(opts.TLSConfig, addr),
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	c := New(conn, opts)
	if err := c.readGreeting(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection. The caller must read the greeting
// itself (Dial does); New is meant for tests and custom dialers.
func New(conn net.Conn, opts *Options) *Conn {
	if opts == nil {
		opts = &Options{Timeouts: DefaultTimeouts()}
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Conn{
		conn:     conn,
		br:       bufio.NewReader(conn),
		bw:       bufio.NewWriter(conn),
		timeouts: opts.Timeouts,
		log:      log,
	}
}

func tlsConfig(base *tls.Config, addr string) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = new(tls.Config)
	}
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		cfg.ServerName = host
	}
	return cfg
}

// Greeting reports the status of the server greeting: OK or PREAUTH.
func (c *Conn) Greeting() imap.StatusResponseType {
	return c.greeting
}

func (c *Conn) readGreeting(ctx context.Context) error {
	stop := c.armDeadline(ctx)
	defer stop()

	text, _, err := c.readResponseLine(ctx)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("reading greeting: %w", err))
	}
	c.log.Trace().Str("imap_data", text).Msg("S: greeting")

	rest, ok := strings.CutPrefix(text, "* ")
	if !ok {
		return fmt.Errorf("imapwire: unexpected greeting %q", text)
	}

	status, code, msg := parseStatus(rest)
	switch status {
	case imap.StatusResponseTypeOK, imap.StatusResponseTypePreAuth:
		c.greeting = status
		return nil
	case imap.StatusResponseTypeBye:
		return &imap.Error{Type: status, Code: code, Text: msg}
	default:
		return fmt.Errorf("imapwire: unexpected greeting %q", text)
	}
}

// Execute sends "tag name args..." and returns the server's response.
// Arguments are written verbatim; use Quote for strings. When the command
// completes with NO or BAD, both the response and an *imap.Error are
// returned.
func (c *Conn) Execute(ctx context.Context, name string, args ...string) (*Response, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	tag := c.nextTag()
	line := tag + " " + name
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	if strings.ContainsAny(line, "\r\n") {
		return nil, fmt.Errorf("imapwire: %s: argument contains a line break", name)
	}

	stop := c.armDeadline(ctx)
	defer stop()

	c.traceCommand(name, line)
	if err := c.writeLine(line); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("writing %s: %w", name, err))
	}

	return c.readTagged(ctx, tag, nil)
}

// Authenticate runs the AUTHENTICATE exchange for the given SASL client.
// Continuation payloads are base64 encoded as the protocol requires.
func (c *Conn) Authenticate(ctx context.Context, client sasl.Client) (*Response, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	mech, ir, err := client.Start()
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", mech, err)
	}

	tag := c.nextTag()
	stop := c.armDeadline(ctx)
	defer stop()

	c.log.Trace().Str("imap_data", tag+" AUTHENTICATE "+mech).Msg("C:")
	if err := c.writeLine(tag + " AUTHENTICATE " + mech); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("writing AUTHENTICATE: %w", err))
	}

	var saslErr error
	initial := ir
	resp, err := c.readTagged(ctx, tag, func(challenge string) string {
		if initial != nil {
			reply := initial
			initial = nil
			return base64.StdEncoding.EncodeToString(reply)
		}

		decoded, err := base64.StdEncoding.DecodeString(challenge)
		if err != nil {
			saslErr = fmt.Errorf("decoding challenge: %w", err)
			return "*"
		}
		reply, err := client.Next(decoded)
		if err != nil {
			saslErr = err
			return "*"
		}
		return base64.StdEncoding.EncodeToString(reply)
	})
	if saslErr != nil {
		return resp, fmt.Errorf("%s exchange: %w", mech, saslErr)
	}
	return resp, err
}

// Close closes the underlying connection. It is safe to call more than
// once; only the first call closes.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) usable() error {
	if c.closed {
		return ErrClosed
	}
	return c.err
}

func (c *Conn) nextTag() string {
	c.tagSeq++
	return "A" + strconv.FormatUint(c.tagSeq, 10)
}

// fail records a transport error. The connection cannot be resynchronized
// after a partial read or write, so every later command returns it too.
// A cancelled context takes precedence over the deadline error it caused.
func (c *Conn) fail(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if d, ok := ctx.Deadline(); ok && ctxErr == nil && !time.Now().Before(d) {
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	c.err = err
	return err
}

// armDeadline applies the command timeout, or the context deadline when
// it is earlier, and interrupts pending I/O when ctx is cancelled.
func (c *Conn) armDeadline(ctx context.Context) (stop func()) {
	_ = c.conn.SetDeadline(c.deadline(ctx, c.timeouts.Command))

	stopAfter := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stopAfter()
		_ = c.conn.SetDeadline(time.Time{})
	}
}

func (c *Conn) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func (c *Conn) writeLine(line string) error {
	if _, err := c.bw.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

// readTagged reads until the tagged completion for tag. Continuation
// requests are answered by cont; without cont they are a protocol error.
func (c *Conn) readTagged(ctx context.Context, tag string, cont func(challenge string) string) (*Response, error) {
	resp := &Response{Tag: tag}
	for {
		text, literals, err := c.readResponseLine(ctx)
		if err != nil {
			return nil, c.fail(ctx, fmt.Errorf("reading response to %s: %w", tag, err))
		}

		switch {
		case strings.HasPrefix(text, "* "):
			c.log.Trace().Str("imap_data", text).Int("literals", len(literals)).Msg("S:")
			resp.Lines = append(resp.Lines, Line{Text: text[2:], Literals: literals})

		case text == "+" || strings.HasPrefix(text, "+ "):
			if cont == nil {
				return nil, c.fail(ctx, fmt.Errorf("imapwire: unexpected continuation request %q", text))
			}
			c.log.Trace().Str("imap_data", "+ [challenge]").Msg("S:")
			reply := cont(strings.TrimSpace(strings.TrimPrefix(text, "+")))
			c.log.Trace().Str("imap_data", "[sasl response redacted]").Msg("C:")
			if err := c.writeLine(reply); err != nil {
				return nil, c.fail(ctx, fmt.Errorf("writing continuation: %w", err))
			}

		default:
			got, rest, _ := strings.Cut(text, " ")
			if got != tag {
				return nil, c.fail(ctx, fmt.Errorf("imapwire: unexpected response %q", text))
			}
			c.log.Trace().Str("imap_data", text).Msg("S:")
			resp.Status, resp.Code, resp.Text = parseStatus(rest)
			return resp, resp.Err()
		}
	}
}

// readResponseLine reads one logical response line. Every literal
// announced at the end of a physical line is read into literals, and the
// text that follows it is appended to the same logical line.
func (c *Conn) readResponseLine(ctx context.Context) (string, [][]byte, error) {
	var (
		sb       strings.Builder
		literals [][]byte
	)
	for {
		part, err := c.readLine()
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(part)

		m := literalMarker.FindStringSubmatch(part)
		if m == nil {
			return sb.String(), literals, nil
		}

		size, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || size > maxLiteralSize {
			return "", nil, fmt.Errorf("imapwire: literal of %s bytes refused", m[1])
		}

		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		_ = c.conn.SetReadDeadline(c.deadline(ctx, c.timeouts.Literal))
		buf := make([]byte, size)
		if _, err := io.ReadFull(c.br, buf); err != nil {
			return "", nil, fmt.Errorf("reading literal: %w", err)
		}
		_ = c.conn.SetReadDeadline(c.deadline(ctx, c.timeouts.Command))
		literals = append(literals, buf)
	}
}

func (c *Conn) readLine() (string, error) {
	var buf []byte
	for {
		chunk, err := c.br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxLineLength {
			return "", fmt.Errorf("imapwire: line exceeds %d bytes", maxLineLength)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(buf), "\r\n"), nil
	}
}

func (c *Conn) traceCommand(name, line string) {
	if e := c.log.Trace(); e.Enabled() {
		if strings.EqualFold(name, "LOGIN") {
			tag, _, _ := strings.Cut(line, " ")
			line = tag + " LOGIN [credentials redacted]"
		}
		e.Str("imap_data", line).Msg("C:")
	}
}
