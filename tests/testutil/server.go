package testutil

import (
	"bufio"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/rs/zerolog"
)

const delimiter = '/'

// Message is one message held by the server.
type Message struct {
	UID   uint32
	Flags []string
	Raw   string
}

// NewMessage builds a small RFC 5322 message with the given sender and
// subject.
func NewMessage(uid uint32, from, subject string, flags ...string) Message {
	raw := "From: " + from + "\r\n" +
		"To: me@example.org\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Body of message " + strconv.FormatUint(uint64(uid), 10) + ".\r\n"
	return Message{UID: uid, Flags: flags, Raw: raw}
}

// Mailbox is one mailbox held by the server.
type Mailbox struct {
	Name       string
	Attributes []string
	Messages   []Message
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCredentials sets the accepted username and password. The default
// is "alice" / "secret".
func WithCredentials(username, password string) ServerOption {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithMailbox adds a mailbox. Mailboxes are listed in the order added.
func WithMailbox(name string, messages ...Message) ServerOption {
	return WithMailboxAttributes(name, nil, messages...)
}

// WithMailboxAttributes adds a mailbox carrying LIST attributes. Messages
// keep their UIDs; a zero UID takes the next free one.
func WithMailboxAttributes(name string, attrs []string, messages ...Message) ServerOption {
	return func(s *Server) {
		mb := &Mailbox{Name: name, Attributes: attrs, Messages: slices.Clone(messages)}
		s.mailboxes = append(s.mailboxes, mb)
	}
}

// WithLoginFailure makes every login, LOGIN or AUTHENTICATE, fail with err.
func WithLoginFailure(err *imap.Error) ServerOption {
	return func(s *Server) {
		s.loginFailure = err
	}
}

// WithUnsolicitedFetch makes FETCH responses start with a flag-only
// FETCH line for the first message, the way servers report flag changes
// made by other clients.
func WithUnsolicitedFetch() ServerOption {
	return func(s *Server) {
		s.unsolicitedFetch = true
	}
}

// WithPartialStatus makes STATUS for mailbox omit the UNSEEN counter.
func WithPartialStatus(mailbox string) ServerOption {
	return func(s *Server) {
		s.partialStatus = mailbox
	}
}

// WithStall makes the server read the named command and never answer.
func WithStall(command string) ServerOption {
	return func(s *Server) {
		s.stall = strings.ToUpper(command)
	}
}

// WithPreAuth greets clients with PREAUTH instead of OK.
func WithPreAuth() ServerOption {
	return func(s *Server) {
		s.preAuth = true
	}
}

// Server is an in-process IMAP4rev1 server backed by imapmemserver. It
// keeps message state across connections and records every command line
// it receives.
type Server struct {
	ln   net.Listener
	srv  *imapserver.Server
	mem  *imapmemserver.Server
	user *imapmemserver.User

	username         string
	password         string
	mailboxes        []*Mailbox
	loginFailure     *imap.Error
	unsolicitedFetch bool
	partialStatus    string
	stall            string
	preAuth          bool

	mu       sync.Mutex
	commands []string
}

// NewServer starts a server on a loopback port. It stops when the test
// completes.
func NewServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	s := &Server{
		username: "alice",
		password: "secret",
		mem:      imapmemserver.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.user = imapmemserver.NewUser(s.username, s.password)
	s.mem.AddUser(s.user)
	for _, mb := range s.mailboxes {
		s.seed(t, mb)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	s.ln = ln

	nop := zerolog.Nop()
	s.srv = imapserver.New(&imapserver.Options{
		NewSession:   s.newSession,
		Caps:         imap.CapSet{imap.CapIMAP4rev1: {}},
		Logger:       &nop,
		InsecureAuth: true,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.srv.Serve(&recordingListener{Listener: ln, s: s})
	}()

	t.Cleanup(func() {
		_ = s.srv.Close()
		_ = ln.Close()
		<-done
	})
	return s
}

// seed creates mb and appends its messages. Messages asking for a UID
// above the mailbox's next one are preceded by filler messages that are
// expunged afterwards, leaving a gap.
func (s *Server) seed(t *testing.T, mb *Mailbox) {
	t.Helper()

	if err := s.user.Create(mb.Name, nil); err != nil {
		t.Fatalf("creating %s: %v", mb.Name, err)
	}

	var fillers imap.UIDSet
	for _, m := range mb.Messages {
		if m.UID != 0 {
			for next := s.uidNext(t, mb.Name); next < imap.UID(m.UID); next++ {
				data := s.appendMessage(t, mb.Name, "\r\n", []string{string(imap.FlagDeleted)})
				fillers.AddNum(data.UID)
			}
		}
		data := s.appendMessage(t, mb.Name, m.Raw, m.Flags)
		if m.UID != 0 && data.UID != imap.UID(m.UID) {
			t.Fatalf("mailbox %s: message wants UID %d, got %d", mb.Name, m.UID, data.UID)
		}
	}
	if len(fillers) == 0 {
		return
	}

	sess := imapmemserver.NewUserSession(s.user)
	defer sess.Close()
	if _, err := sess.Select(mb.Name, nil); err != nil {
		t.Fatalf("selecting %s: %v", mb.Name, err)
	}
	if err := sess.Expunge(nil, &fillers); err != nil {
		t.Fatalf("expunging %s: %v", mb.Name, err)
	}
}

func (s *Server) uidNext(t *testing.T, mailbox string) imap.UID {
	t.Helper()
	data, err := s.user.Status(mailbox, &imap.StatusOptions{UIDNext: true})
	if err != nil {
		t.Fatalf("status %s: %v", mailbox, err)
	}
	return data.UIDNext
}

func (s *Server) appendMessage(t *testing.T, mailbox, raw string, flags []string) *imap.AppendData {
	t.Helper()
	data, err := s.user.Append(mailbox, strings.NewReader(raw), &imap.AppendOptions{Flags: toFlags(flags)})
	if err != nil {
		t.Fatalf("appending to %s: %v", mailbox, err)
	}
	return data
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Commands returns every command received so far without its tag, in
// arrival order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

// CommandCount returns how many received commands start with prefix.
func (s *Server) CommandCount(prefix string) int {
	n := 0
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var reportedFlags = []imap.Flag{
	imap.FlagSeen,
	imap.FlagAnswered,
	imap.FlagFlagged,
	imap.FlagDeleted,
	imap.FlagDraft,
}

// Messages returns the messages currently in mailbox with their UIDs and
// system flags, in sequence order. Raw is not filled in.
func (s *Server) Messages(mailbox string) []Message {
	sess := imapmemserver.NewUserSession(s.user)
	defer sess.Close()
	if _, err := sess.Select(mailbox, nil); err != nil {
		return nil
	}

	var out []Message
	index := map[imap.UID]int{}
	for _, uid := range searchUIDs(sess, &imap.SearchCriteria{}) {
		index[uid] = len(out)
		out = append(out, Message{UID: uint32(uid)})
	}
	for _, flag := range reportedFlags {
		for _, uid := range searchUIDs(sess, &imap.SearchCriteria{Flag: []imap.Flag{flag}}) {
			if i, ok := index[uid]; ok {
				out[i].Flags = append(out[i].Flags, string(flag))
			}
		}
	}
	return out
}

func searchUIDs(sess *imapmemserver.UserSession, criteria *imap.SearchCriteria) []imap.UID {
	data, err := sess.Search(imapserver.NumKindUID, criteria, &imap.SearchOptions{})
	if err != nil {
		return nil
	}
	set, ok := data.All.(imap.UIDSet)
	if !ok {
		return nil
	}
	uids, _ := set.Nums()
	return uids
}

func (s *Server) newSession(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
	sess := &session{Session: s.mem.NewSession(), s: s}
	if !s.preAuth {
		return sess, nil, nil
	}
	if err := sess.Session.Login(s.username, s.password); err != nil {
		return nil, nil, err
	}
	return sess, &imapserver.GreetingData{PreAuth: true}, nil
}

// session layers the configured failures and quirks over an
// imapmemserver session.
type session struct {
	imapserver.Session
	s        *Server
	selected string
}

func (ss *session) Login(username, password string) error {
	if ss.s.loginFailure != nil {
		return ss.s.loginFailure
	}
	return ss.Session.Login(username, password)
}

// List reports mailboxes in the order they were added, with their
// configured attributes.
func (ss *session) List(w *imapserver.ListWriter, ref string, patterns []string, options *imap.ListOptions) error {
	if len(patterns) == 0 {
		return ss.Session.List(w, ref, patterns, options)
	}
	for _, mb := range ss.s.mailboxes {
		if !slices.ContainsFunc(patterns, func(p string) bool {
			return imapserver.MatchList(mb.Name, delimiter, ref, p)
		}) {
			continue
		}
		data := &imap.ListData{Mailbox: mb.Name, Delim: delimiter}
		for _, attr := range mb.Attributes {
			data.Attrs = append(data.Attrs, imap.MailboxAttr(attr))
		}
		if err := w.WriteList(data); err != nil {
			return err
		}
	}
	return nil
}

// Status leaves UNSEEN out of the response for the partial-status mailbox.
// The response is written from options, so clearing the item there is
// enough.
func (ss *session) Status(mailbox string, options *imap.StatusOptions) (*imap.StatusData, error) {
	if ss.s.partialStatus != "" && ss.s.partialStatus == mailbox {
		options.NumUnseen = false
	}
	return ss.Session.Status(mailbox, options)
}

func (ss *session) Select(mailbox string, options *imap.SelectOptions) (*imap.SelectData, error) {
	ss.selected = ""
	data, err := ss.Session.Select(mailbox, options)
	if err == nil {
		ss.selected = mailbox
	}
	return data, err
}

func (ss *session) Unselect() error {
	ss.selected = ""
	return ss.Session.Unselect()
}

func (ss *session) Fetch(w *imapserver.FetchWriter, numSet imap.NumSet, options *imap.FetchOptions) error {
	if ss.s.unsolicitedFetch {
		if msgs := ss.s.Messages(ss.selected); len(msgs) > 0 {
			resp := w.CreateMessage(1)
			resp.WriteFlags(toFlags(msgs[0].Flags))
			if err := resp.Close(); err != nil {
				return err
			}
		}
	}
	return ss.Session.Fetch(w, numSet, options)
}

func toFlags(flags []string) []imap.Flag {
	out := make([]imap.Flag, len(flags))
	for i, f := range flags {
		out[i] = imap.Flag(f)
	}
	return out
}

type recordingListener struct {
	net.Listener
	s *Server
}

func (l *recordingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &recordingConn{
		Conn:   conn,
		s:      l.s,
		r:      bufio.NewReader(conn),
		closed: make(chan struct{}),
	}, nil
}

// recordingConn hands client input to the server one line at a time,
// recording each command line and holding back a stalled one until the
// connection closes.
type recordingConn struct {
	net.Conn
	s       *Server
	r       *bufio.Reader
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *recordingConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		line, err := c.r.ReadBytes('\n')
		if len(line) == 0 {
			return 0, err
		}
		if c.s.record(string(line)) {
			<-c.closed
			return 0, net.ErrClosed
		}
		c.pending = line
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *recordingConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

// record stores a tagged command line without its tag and reports
// whether the command is to be stalled. SASL responses carry no tag and
// are skipped.
func (s *Server) record(line string) (stall bool) {
	_, rest, ok := strings.Cut(strings.TrimRight(line, "\r\n"), " ")
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, rest)
	return s.stall != "" && strings.HasPrefix(strings.ToUpper(rest), s.stall)
}
