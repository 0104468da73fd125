// Package session owns a single IMAP connection and exposes folder scoped operations on top of
// it. The connection is opened lazily and reopened whenever the server has logged it out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoFolderSelected is returned by flag operations when no folder is open.
	ErrNoFolderSelected = errors.New("no folder selected")

	// ErrNoAppendUID is returned by SaveDraft when the server did not report the UID it assigned.
	ErrNoAppendUID = errors.New("server returned no APPENDUID")
)

// Session owns one connection. All methods are safe for concurrent use, but operations run one at
// a time because a connection has a single selected folder.
type Session struct {
	mu sync.Mutex

	dialer  Dialer
	account Account
	now     func() time.Time

	state    State
	conn     Conn
	folders  *folder.Registry
	selected string
}

// New returns a Session for explicit credentials. Nothing is dialed until the first operation.
func New(d Dialer, c Credentials) *Session {
	return NewForAccount(d, staticAccount(c))
}

// NewForAccount returns a Session that asks a for credentials on every connect.
func NewForAccount(d Dialer, a Account) *Session {
	return &Session{
		dialer:  d,
		account: a,
		now:     time.Now,
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Folders returns the folder registry, connecting first if needed.
func (s *Session) Folders(ctx context.Context) (*folder.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return s.folders, nil
}

// ensureReady makes sure a logged in connection exists, dialing a new one when there is none or
// the server has dropped the old one. The folder registry is rebuilt after every login.
func (s *Session) ensureReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conn != nil && s.state == Ready && usable(s.conn.State()) {
		return nil
	}
	if s.conn != nil {
		log.Info().Str("module", "session").Int("state", int(s.conn.State())).
			Msg("Connection no longer usable, reconnecting")
		expReconnects.Add(1)
		if err := s.conn.Logout(); err != nil {
			log.Debug().Str("module", "session").Err(err).Msg("Logout of stale connection")
		}
		s.conn = nil
	}

	creds, err := s.account.Credentials()
	if err != nil {
		s.state = Disconnected
		return fmt.Errorf("loading credentials: %w", err)
	}
	s.state = Authenticating
	s.selected = ""
	s.folders = nil

	conn, err := s.dialer.Dial(ctx, creds)
	if err != nil {
		s.state = Disconnected
		expConnectFailures.Add(1)
		return fmt.Errorf("connecting to %s: %w", creds.Addr(), err)
	}
	expConnectsTotal.Add(1)

	if err := conn.Login(creds.Username, creds.Password); err != nil {
		s.state = Disconnected
		expLoginFailures.Add(1)
		if lerr := conn.Logout(); lerr != nil {
			log.Debug().Str("module", "session").Err(lerr).Msg("Logout after failed login")
		}
		return fmt.Errorf("logging in as %s: %w", creds.Username, err)
	}

	reg, err := folder.Discover(conn)
	if err != nil {
		s.state = Disconnected
		if lerr := conn.Logout(); lerr != nil {
			log.Debug().Str("module", "session").Err(lerr).Msg("Logout after failed listing")
		}
		return err
	}

	s.conn = conn
	s.folders = reg
	s.state = Ready
	log.Info().Str("module", "session").Str("addr", creds.Addr()).Str("username", creds.Username).
		Int("folders", reg.Len()).Msg("Logged in")
	return nil
}

// resolve returns the server name for ref, and whether the folder is known to exist. An empty
// registry cannot rule anything out.
func (s *Session) resolve(ref folder.Ref) (string, bool) {
	name := s.folders.Resolve(ref)
	if s.folders.Len() == 0 {
		return name, true
	}
	return name, s.folders.Folder(name) != nil
}

func (s *Session) selectFolder(name string, readOnly bool) (uint32, error) {
	exists, err := s.conn.Select(name, readOnly)
	if err != nil {
		s.selected = ""
		return 0, fmt.Errorf("selecting %q: %w", name, err)
	}
	s.selected = name
	return exists, nil
}

// closeFolder closes the selected folder. Failures are logged, never returned.
func (s *Session) closeFolder() {
	if s.conn == nil || s.selected == "" {
		return
	}
	if err := s.conn.Close(); err != nil {
		log.Warn().Str("module", "session").Str("folder", s.selected).Err(err).Msg("Failed to close folder")
	}
	s.selected = ""
}

// OpenFolder selects ref and leaves it selected, returning its message count.
func (s *Session) OpenFolder(ctx context.Context, ref folder.Ref, readOnly bool) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	name, _ := s.resolve(ref)
	return s.selectFolder(name, readOnly)
}

// CloseFolder closes the selected folder, if any.
func (s *Session) CloseFolder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFolder()
}

// Logout ends the session. It is safe to call more than once. The next operation reconnects.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		s.state = Disconnected
		return
	}
	if err := s.conn.Logout(); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("Logout failed")
	}
	s.conn = nil
	s.folders = nil
	s.selected = ""
	s.state = Disconnected
}
