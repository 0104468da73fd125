// Package folder models the mailbox folders of an IMAP account and maps vendor specific folder
// names onto a fixed set of canonical roles.
package folder

import "strings"

// Role is the canonical purpose of a folder, independent of the name a server gives it.
type Role string

// Canonical folder roles, named after the Gmail XLIST markers.
const (
	Inbox     Role = "inbox"
	Sent      Role = "sent"
	Drafts    Role = "drafts"
	Trash     Role = "trash"
	AllMail   Role = "allmail"
	Spam      Role = "spam"
	Important Role = "important"
	Starred   Role = "starred"
)

// Roles lists every canonical role.
var Roles = []Role{Inbox, Sent, Drafts, Trash, AllMail, Spam, Important, Starred}

// InboxName is the protocol keyword for the inbox. Some servers only accept this literal when
// selecting the inbox, regardless of the localized name they list it under.
const InboxName = "INBOX"

var markers = map[Role]string{
	Inbox:     `\Inbox`,
	Sent:      `\Sent`,
	Drafts:    `\Drafts`,
	Trash:     `\Trash`,
	AllMail:   `\AllMail`,
	Spam:      `\Spam`,
	Important: `\Important`,
	Starred:   `\Starred`,
}

// roleFlags maps lowercased mailbox attributes to roles. XLIST markers and their RFC 6154
// SPECIAL-USE equivalents are both accepted.
var roleFlags = map[string]Role{
	`\inbox`:     Inbox,
	`\sent`:      Sent,
	`\drafts`:    Drafts,
	`\trash`:     Trash,
	`\allmail`:   AllMail,
	`\all`:       AllMail,
	`\spam`:      Spam,
	`\junk`:      Spam,
	`\important`: Important,
	`\starred`:   Starred,
	`\flagged`:   Starred,
}

// Marker returns the XLIST attribute for the role, ex: `\Sent`.
func (r Role) Marker() string {
	return markers[r]
}

// Valid returns true if r is one of the canonical roles.
func (r Role) Valid() bool {
	_, ok := markers[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// RoleForMarker returns the role for an XLIST or SPECIAL-USE attribute, ex: `\Junk`.
func RoleForMarker(marker string) (Role, bool) {
	r, ok := roleFlags[strings.ToLower(marker)]
	return r, ok
}

// DeriveRole intersects flags with the canonical role markers. A role is only returned when
// exactly one distinct role matches; ambiguous or missing markers yield the empty Role.
func DeriveRole(flags []string) Role {
	var found Role
	for _, f := range flags {
		r, ok := RoleForMarker(f)
		if !ok || r == found {
			continue
		}
		if found != "" {
			return ""
		}
		found = r
	}
	return found
}
