package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/lilycrm/imapmail/pkg/session"
)

// Mailbox names with scripted failures.
const (
	// FetchErrMailbox fails every fetch after the first message.
	FetchErrMailbox = "fetcherr"
	// SelectErrMailbox is listed but cannot be selected.
	SelectErrMailbox = "selecterr"
)

// Message is a message stored by ServerStub.
type Message struct {
	UID          uint32
	Flags        []string
	Raw          []byte
	InternalDate time.Time
}

// Mailbox is a folder held by ServerStub.
type Mailbox struct {
	Name     string
	Delim    rune
	Flags    []string
	Messages []*Message
	uidNext  uint32
}

// Add stores raw in the mailbox and returns its UID.
func (mb *Mailbox) Add(raw string, flags ...string) uint32 {
	mb.uidNext++
	mb.Messages = append(mb.Messages, &Message{
		UID:          mb.uidNext,
		Flags:        flags,
		Raw:          []byte(raw),
		InternalDate: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	return mb.uidNext
}

// Message returns the message with uid, or nil.
func (mb *Mailbox) Message(uid uint32) *Message {
	for _, m := range mb.Messages {
		if m.UID == uid {
			return m
		}
	}
	return nil
}

// ServerStub is an in-memory IMAP account implementing session.Dialer. Every command received
// is recorded and can be inspected with Commands.
type ServerStub struct {
	Username string
	Password string
	// NilListing makes LIST return a single nil entry.
	NilListing bool
	// NoAppendUID makes APPEND succeed without reporting a UID.
	NoAppendUID bool
	// DialErr fails every dial when set.
	DialErr error

	mu        sync.Mutex
	mailboxes []*Mailbox
	commands  []string
	conns     []*ConnStub
	dials     int
}

var _ session.Dialer = &ServerStub{}

// NewServer creates a ServerStub accepting the given credentials.
func NewServer(username, password string) *ServerStub {
	return &ServerStub{Username: username, Password: password}
}

// AddMailbox creates a mailbox with the given LIST attributes.
func (s *ServerStub) AddMailbox(name string, flags ...string) *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb := &Mailbox{Name: name, Delim: '/', Flags: flags}
	s.mailboxes = append(s.mailboxes, mb)
	return mb
}

// Mailbox returns the mailbox with name, or nil. INBOX matches case-insensitively.
func (s *ServerStub) Mailbox(name string) *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailboxLocked(name)
}

func (s *ServerStub) mailboxLocked(name string) *Mailbox {
	for _, mb := range s.mailboxes {
		if mb.Name == name || strings.EqualFold(name, folder.InboxName) && strings.EqualFold(mb.Name, name) {
			return mb
		}
	}
	// Servers accept INBOX for the inbox whatever its listed name.
	if strings.EqualFold(name, folder.InboxName) {
		for _, mb := range s.mailboxes {
			if folder.DeriveRole(mb.Flags) == folder.Inbox {
				return mb
			}
		}
	}
	return nil
}

// Dial implements session.Dialer.
func (s *ServerStub) Dial(ctx context.Context, c session.Credentials) (session.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	s.dials++
	conn := &ConnStub{server: s, state: imap.ConnStateNotAuthenticated}
	s.conns = append(s.conns, conn)
	return conn, nil
}

// Dials returns the number of connections opened.
func (s *ServerStub) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Commands returns the commands received so far, ex: "EXAMINE INBOX".
func (s *ServerStub) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// ResetCommands clears the command log.
func (s *ServerStub) ResetCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// Drop logs out every open connection, as a server does on idle timeout.
func (s *ServerStub) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.state = imap.ConnStateLogout
	}
}

func (s *ServerStub) record(format string, args ...interface{}) {
	s.commands = append(s.commands, fmt.Sprintf(format, args...))
}

// ConnStub is one connection to a ServerStub.
type ConnStub struct {
	server   *ServerStub
	state    imap.ConnState
	selected *Mailbox
	readOnly bool
}

var _ session.Conn = &ConnStub{}

var (
	errNotAuthenticated = errors.New("BAD not authenticated")
	errNotSelected      = errors.New("BAD no mailbox selected")
	errLoggedOut        = errors.New("connection closed")
)

func (c *ConnStub) check(selected bool) error {
	switch {
	case c.state == imap.ConnStateLogout:
		return errLoggedOut
	case c.state == imap.ConnStateNotAuthenticated:
		return errNotAuthenticated
	case selected && c.selected == nil:
		return errNotSelected
	}
	return nil
}

// State implements session.Conn.
func (c *ConnStub) State() imap.ConnState {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.state
}

// Login implements session.Conn.
func (c *ConnStub) Login(username, password string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("LOGIN %s", username)
	if c.state == imap.ConnStateLogout {
		return errLoggedOut
	}
	if username != c.server.Username || password != c.server.Password {
		return errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials")
	}
	c.state = imap.ConnStateAuthenticated
	return nil
}

// List implements session.Conn.
func (c *ConnStub) List() ([]*folder.ListEntry, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("LIST")
	if err := c.check(false); err != nil {
		return nil, err
	}
	if c.server.NilListing {
		return []*folder.ListEntry{nil}, nil
	}
	entries := make([]*folder.ListEntry, len(c.server.mailboxes))
	for i, mb := range c.server.mailboxes {
		entries[i] = &folder.ListEntry{Name: mb.Name, Delim: mb.Delim, Flags: mb.Flags}
	}
	return entries, nil
}

// Select implements session.Conn.
func (c *ConnStub) Select(mailbox string, readOnly bool) (uint32, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if readOnly {
		c.server.record("EXAMINE %s", mailbox)
	} else {
		c.server.record("SELECT %s", mailbox)
	}
	if err := c.check(false); err != nil {
		return 0, err
	}
	c.selected = nil
	mb := c.server.mailboxLocked(mailbox)
	if mb == nil || mb.Name == SelectErrMailbox {
		c.state = imap.ConnStateAuthenticated
		return 0, errors.New("NO Mailbox doesn't exist: " + mailbox)
	}
	c.selected = mb
	c.readOnly = readOnly
	c.state = imap.ConnStateSelected
	return uint32(len(mb.Messages)), nil
}

// Search implements session.Conn. Only the Flag and NotFlag criteria are supported.
func (c *ConnStub) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("UID SEARCH")
	if err := c.check(true); err != nil {
		return nil, err
	}
	uids := make([]uint32, 0, len(c.selected.Messages))
	for _, m := range c.selected.Messages {
		if matches(m, criteria) {
			uids = append(uids, m.UID)
		}
	}
	return uids, nil
}

func matches(m *Message, criteria *imap.SearchCriteria) bool {
	if criteria == nil {
		return true
	}
	for _, f := range criteria.Flag {
		if !hasFlag(m.Flags, string(f)) {
			return false
		}
	}
	for _, f := range criteria.NotFlag {
		if hasFlag(m.Flags, string(f)) {
			return false
		}
	}
	return true
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Fetch implements session.Conn.
func (c *ConnStub) Fetch(uids []uint32, items []message.DataItem) ([]*message.Response, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("UID FETCH %v", uids)
	if err := c.check(true); err != nil {
		return nil, err
	}
	var responses []*message.Response
	for _, uid := range uids {
		m := c.selected.Message(uid)
		if m == nil {
			continue
		}
		if c.selected.Name == FetchErrMailbox && len(responses) > 0 {
			return responses, errors.New("connection reset by peer")
		}
		responses = append(responses, response(m, items))
	}
	return responses, nil
}

func response(m *Message, items []message.DataItem) *message.Response {
	r := &message.Response{UID: m.UID}
	for _, item := range items {
		switch item {
		case message.ItemFlags:
			r.Flags = append([]string{}, m.Flags...)
		case message.ItemHeader:
			r.Header = headerBlock(m.Raw)
		case message.ItemBody:
			r.Body = append([]byte(nil), m.Raw...)
		case message.ItemSize:
			r.Size = int64(len(m.Raw))
		case message.ItemInternalDate:
			r.InternalDate = m.InternalDate
		}
	}
	return r
}

// headerBlock returns raw up to and including the blank line ending the header.
func headerBlock(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return append([]byte(nil), raw[:i+4]...)
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return append([]byte(nil), raw[:i+2]...)
	}
	return append([]byte(nil), raw...)
}

// Store implements session.Conn.
func (c *ConnStub) Store(uids []uint32, flags []string, add bool) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	op := "-FLAGS"
	if add {
		op = "+FLAGS"
	}
	c.server.record("UID STORE %v %s %v", uids, op, flags)
	if err := c.check(true); err != nil {
		return err
	}
	if c.readOnly {
		return errors.New("NO mailbox is read-only")
	}
	for _, uid := range uids {
		m := c.selected.Message(uid)
		if m == nil {
			continue
		}
		for _, f := range flags {
			if add && !hasFlag(m.Flags, f) {
				m.Flags = append(m.Flags, f)
			}
			if !add {
				kept := m.Flags[:0]
				for _, have := range m.Flags {
					if !strings.EqualFold(have, f) {
						kept = append(kept, have)
					}
				}
				m.Flags = kept
			}
		}
	}
	return nil
}

// Append implements session.Conn.
func (c *ConnStub) Append(mailbox string, flags []string, date time.Time, literal []byte) (uint32, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("APPEND %s %v", mailbox, flags)
	if err := c.check(false); err != nil {
		return 0, err
	}
	mb := c.server.mailboxLocked(mailbox)
	if mb == nil {
		return 0, errors.New("NO [TRYCREATE] no such mailbox")
	}
	mb.uidNext++
	mb.Messages = append(mb.Messages, &Message{
		UID:          mb.uidNext,
		Flags:        append([]string(nil), flags...),
		Raw:          append([]byte(nil), literal...),
		InternalDate: date,
	})
	if c.server.NoAppendUID {
		return 0, nil
	}
	return mb.uidNext, nil
}

// Status implements session.Conn.
func (c *ConnStub) Status(mailbox string, items []session.StatusItem) (map[session.StatusItem]uint32, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("STATUS %s", mailbox)
	if err := c.check(false); err != nil {
		return nil, err
	}
	mb := c.server.mailboxLocked(mailbox)
	if mb == nil {
		return nil, errors.New("NO no such mailbox")
	}
	result := make(map[session.StatusItem]uint32)
	for _, item := range items {
		switch item {
		case session.StatusMessages:
			result[item] = uint32(len(mb.Messages))
		case session.StatusUIDNext:
			result[item] = mb.uidNext + 1
		case session.StatusUIDValidity:
			result[item] = 1
		case session.StatusUnseen:
			var n uint32
			for _, m := range mb.Messages {
				if !hasFlag(m.Flags, `\Seen`) {
					n++
				}
			}
			result[item] = n
		}
	}
	return result, nil
}

// Close implements session.Conn.
func (c *ConnStub) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("CLOSE")
	if err := c.check(true); err != nil {
		return err
	}
	c.selected = nil
	c.state = imap.ConnStateAuthenticated
	return nil
}

// Logout implements session.Conn.
func (c *ConnStub) Logout() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.record("LOGOUT")
	if c.state == imap.ConnStateLogout {
		return errLoggedOut
	}
	c.state = imap.ConnStateLogout
	c.selected = nil
	return nil
}
