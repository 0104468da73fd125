package folder

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ListEntry is one mailbox returned by the server's folder listing.
type ListEntry struct {
	Name  string
	Delim rune
	Flags []string
}

// Lister issues the server's folder listing command.
type Lister interface {
	List() ([]*ListEntry, error)
}

// Registry holds the folders discovered for one connected session, plus the role to server name
// table. Registries are rebuilt on reconnect; folders deleted server side in the meantime leave
// stale entries.
type Registry struct {
	folders []*Folder
	roles   map[Role]string
}

// NewRegistry builds a registry from already listed entries. Nil entries are skipped, so the
// degenerate single nil listing some servers return for an empty account yields an empty registry.
func NewRegistry(entries []*ListEntry) *Registry {
	reg := &Registry{roles: make(map[Role]string)}
	for _, e := range entries {
		if e == nil {
			continue
		}
		flags := e.Flags
		if strings.EqualFold(e.Name, InboxName) && DeriveRole(flags) == "" {
			// LIST does not carry an Inbox attribute the way XLIST does.
			flags = append(append([]string(nil), flags...), Inbox.Marker())
		}
		f := NewFolder(e.Name, e.Delim, flags)
		reg.folders = append(reg.folders, f)
		if f.role != "" {
			// Last one wins when a server reports the same role twice.
			reg.roles[f.role] = f.serverName
		}
	}
	return reg
}

// Discover lists the folders once and builds a Registry from the result.
func Discover(l Lister) (*Registry, error) {
	entries, err := l.List()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	reg := NewRegistry(entries)
	log.Debug().Str("module", "folder").Int("folders", len(reg.folders)).Int("roles", len(reg.roles)).
		Msg("Discovered folders")
	return reg, nil
}

// Len returns the number of known folders.
func (r *Registry) Len() int {
	return len(r.folders)
}

// Folder returns the folder with the given server name, or nil.
func (r *Registry) Folder(serverName string) *Folder {
	for _, f := range r.folders {
		if f.serverName == serverName {
			return f
		}
	}
	return nil
}

// Resolve returns the server name for ref. Resolution never fails: an unknown role degrades to
// passthrough, INBOX for the inbox and the role marker otherwise. Names are returned unchanged.
func (r *Registry) Resolve(ref Ref) string {
	switch v := ref.(type) {
	case *Folder:
		if v == nil {
			return ""
		}
		return v.serverName
	case Role:
		if name, ok := r.roles[v]; ok {
			return name
		}
		if v == Inbox {
			return InboxName
		}
		return v.Marker()
	case Name:
		return string(v)
	}
	return ""
}

// Folders returns the known folders in discovery order, dropping those that match any of exclude
// by role, by resolved server name or by identity. Folders that cannot be selected are dropped
// unless includeUnselectable is true.
func (r *Registry) Folders(exclude []Ref, includeUnselectable bool) []*Folder {
	result := make([]*Folder, 0, len(r.folders))
	for _, f := range r.folders {
		if r.excluded(f, exclude) {
			continue
		}
		if !f.CanSelect() && !includeUnselectable {
			continue
		}
		result = append(result, f)
	}
	return result
}

func (r *Registry) excluded(f *Folder, exclude []Ref) bool {
	for _, ref := range exclude {
		switch v := ref.(type) {
		case nil:
			continue
		case *Folder:
			if v == f {
				return true
			}
		case Role:
			if f.role != "" && f.role == v {
				return true
			}
		}
		if r.Resolve(ref) == f.serverName {
			return true
		}
	}
	return false
}
