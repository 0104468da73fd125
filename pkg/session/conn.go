package session

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
)

// StatusItem names a STATUS data item.
type StatusItem string

// Status items supported by Session.Status.
const (
	StatusMessages    StatusItem = "MESSAGES"
	StatusUIDNext     StatusItem = "UIDNEXT"
	StatusUIDValidity StatusItem = "UIDVALIDITY"
	StatusUnseen      StatusItem = "UNSEEN"
)

// Conn is one IMAP connection. Implementations need not be safe for concurrent use, Session
// serializes all calls.
type Conn interface {
	folder.Lister

	// State reports the protocol state as last seen by the connection.
	State() imap.ConnState
	Login(username, password string) error
	// Select opens mailbox and returns its EXISTS count.
	Select(mailbox string, readOnly bool) (uint32, error)
	// Search runs UID SEARCH on the selected mailbox. Nil criteria matches all messages.
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	// Fetch runs UID FETCH on the selected mailbox. Responses read before a failure are returned
	// along with the error.
	Fetch(uids []uint32, items []message.DataItem) ([]*message.Response, error)
	// Store adds or removes flags on the selected mailbox.
	Store(uids []uint32, flags []string, add bool) error
	// Append uploads literal to mailbox and returns the APPENDUID, or 0 if the server sent none.
	Append(mailbox string, flags []string, date time.Time, literal []byte) (uint32, error)
	Status(mailbox string, items []StatusItem) (map[StatusItem]uint32, error)
	// Close closes the selected mailbox.
	Close() error
	Logout() error
}

// Dialer opens a new Conn. The returned connection is not yet logged in.
type Dialer interface {
	Dial(ctx context.Context, c Credentials) (Conn, error)
}

// usable returns false for protocol states that require a new login.
func usable(state imap.ConnState) bool {
	switch state {
	case imap.ConnStateAuthenticated, imap.ConnStateSelected:
		return true
	}
	return false
}
