package folder

import (
	"strings"
)

const (
	attrNoSelect      = `\noselect`
	attrHasNoChildren = `\hasnochildren`
)

// Ref identifies a folder. It is implemented by Role, Name and *Folder.
type Ref interface {
	folderRef()
}

// Name is a folder's server-side name, usable as a Ref.
type Name string

func (Role) folderRef()    {}
func (Name) folderRef()    {}
func (*Folder) folderRef() {}

// ParseRef interprets user input: a role marker such as `\Sent` becomes a Role, anything else is
// taken as a server name.
func ParseRef(s string) Ref {
	if strings.HasPrefix(s, `\`) {
		if r, ok := RoleForMarker(s); ok {
			return r
		}
	}
	return Name(s)
}

// Folder is a single mailbox on the server. Folders are immutable once constructed.
type Folder struct {
	serverName string
	localeName string
	delim      rune
	flags      []string
	role       Role
}

// NewFolder builds a Folder from one LIST response entry. The role is derived from flags here and
// never recomputed.
func NewFolder(listedName string, delim rune, flags []string) *Folder {
	if delim == 0 {
		delim = '/'
	}
	f := &Folder{
		serverName: listedName,
		delim:      delim,
		flags:      append([]string(nil), flags...),
		role:       DeriveRole(flags),
	}
	if f.role == Inbox {
		// Inbox must be selected by the protocol keyword, keep the listed name for display.
		f.serverName = InboxName
		if listedName != InboxName {
			f.localeName = listedName
		}
	}
	return f
}

// ServerName returns the name used in protocol commands.
func (f *Folder) ServerName() string {
	return f.serverName
}

// LocaleName returns the localized name, or empty if the server did not supply a distinct one.
func (f *Folder) LocaleName() string {
	return f.localeName
}

// HasLocaleName returns true if the folder has a display name distinct from its server name.
func (f *Folder) HasLocaleName() bool {
	return f.localeName != ""
}

// Role returns the canonical role, or the empty Role.
func (f *Folder) Role() Role {
	return f.role
}

// Flags returns a copy of the protocol reported attributes.
func (f *Folder) Flags() []string {
	return append([]string(nil), f.flags...)
}

// Delimiter returns the hierarchy delimiter.
func (f *Folder) Delimiter() rune {
	return f.delim
}

// Name returns the locale name when available, otherwise the server name. Unless full is true only
// the last hierarchy segment is returned.
func (f *Folder) Name(full bool) string {
	name := f.serverName
	if f.localeName != "" {
		name = f.localeName
	}
	if full {
		return name
	}
	return f.lastSegment(name)
}

// IsSubfolder returns true if the server name has more than one hierarchy segment.
func (f *Folder) IsSubfolder() bool {
	return f.lastSegment(f.serverName) != f.serverName
}

// Parent returns the server name of the parent folder, or empty for top level folders.
func (f *Folder) Parent() string {
	i := strings.LastIndex(f.serverName, string(f.delim))
	if i < 0 {
		return ""
	}
	return f.serverName[:i]
}

// CanSelect returns false if the server marked the folder \Noselect.
func (f *Folder) CanSelect() bool {
	return !f.hasFlag(attrNoSelect)
}

// HasChildren returns false only if the server marked the folder \HasNoChildren.
func (f *Folder) HasChildren() bool {
	return !f.hasFlag(attrHasNoChildren)
}

func (f *Folder) String() string {
	return f.Name(true)
}

func (f *Folder) hasFlag(lower string) bool {
	for _, fl := range f.flags {
		if strings.ToLower(fl) == lower {
			return true
		}
	}
	return false
}

func (f *Folder) lastSegment(name string) string {
	i := strings.LastIndex(name, string(f.delim))
	if i < 0 {
		return name
	}
	return name[i+len(string(f.delim)):]
}
