package session

import (
	"context"

	"github.com/emersion/go-imap/v2"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/rs/zerolog/log"
)

// SearchOptions controls Search.
type SearchOptions struct {
	// ReadWrite selects the folder read-write. The default is read-only.
	ReadWrite bool
	// Page is 1-based and only used when PageSize is positive.
	Page     int
	PageSize int
	// KeepOpen leaves the folder selected so a Fetch can follow without selecting again.
	KeepOpen bool
}

// FetchOptions controls Fetch.
type FetchOptions struct {
	// KeepOpen leaves the folder selected after fetching.
	KeepOpen bool
}

// Page is one page of messages gathered from several folders.
type Page struct {
	Page     int
	PageSize int
	// FolderCount is the message count of the last folder searched, not a total.
	FolderCount int
	Messages    *message.Messages
}

// Lookup is the result of FindUID.
type Lookup struct {
	Message *message.Message
	Folder  string
	Found   bool
	// Guessed is true when the message came from a folder other than the hint. UIDs are only
	// unique within a folder, so a guessed message may not be the one the caller meant.
	Guessed bool
}

// Search returns the message count of ref and the UIDs matching criteria, optionally paginated.
// A folder that does not exist yields a zero count and no UIDs.
func (s *Session) Search(
	ctx context.Context,
	ref folder.Ref,
	criteria *imap.SearchCriteria,
	opts SearchOptions,
) (int, []uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return 0, nil, err
	}
	return s.search(ctx, ref, criteria, opts)
}

func (s *Session) search(
	ctx context.Context,
	ref folder.Ref,
	criteria *imap.SearchCriteria,
	opts SearchOptions,
) (count int, uids []uint32, err error) {
	name, ok := s.resolve(ref)
	if !ok {
		log.Debug().Str("module", "session").Str("folder", name).Msg("Search in unknown folder")
		return 0, []uint32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	exists, err := s.selectFolder(name, !opts.ReadWrite)
	if err != nil {
		return 0, nil, err
	}
	if !opts.KeepOpen {
		defer s.closeFolder()
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	uids, err = s.conn.Search(criteria)
	if err != nil {
		return 0, nil, err
	}
	if opts.PageSize > 0 {
		uids = paginate(uids, opts.Page, opts.PageSize)
	}
	return int(exists), uids, nil
}

// paginate returns page number page of the given size. Pages past the end are empty.
func paginate(uids []uint32, page, size int) []uint32 {
	if page < 1 {
		page = 1
	}
	// Compare page numbers first so large pages cannot overflow the offset.
	pages := len(uids) / size
	if len(uids)%size != 0 {
		pages++
	}
	if page-1 >= pages {
		return []uint32{}
	}
	start := (page - 1) * size
	end := len(uids)
	if size < end-start {
		end = start + size
	}
	return uids[start:end]
}

// Fetch fetches and decodes uids from ref, selecting it read-only unless it is already the
// selected folder. Messages the server did not return are absent from the result. When the
// transport fails midway the messages decoded so far are returned without an error.
func (s *Session) Fetch(
	ctx context.Context,
	ref folder.Ref,
	uids []uint32,
	items []message.DataItem,
	opts FetchOptions,
) (map[uint32]*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	name, _ := s.resolve(ref)
	if s.selected != name {
		if _, err := s.selectFolder(name, true); err != nil {
			return nil, err
		}
	}
	if !opts.KeepOpen {
		defer s.closeFolder()
	}
	return s.fetch(ctx, name, uids, items), nil
}

// fetch runs against the selected folder name and never fails.
func (s *Session) fetch(ctx context.Context, name string, uids []uint32, items []message.DataItem) map[uint32]*message.Message {
	result := make(map[uint32]*message.Message)
	if len(uids) == 0 {
		return result
	}
	if err := ctx.Err(); err != nil {
		log.Debug().Str("module", "session").Err(err).Msg("Fetch cancelled")
		return result
	}
	responses, err := s.conn.Fetch(uids, items)
	if err != nil {
		log.Warn().Str("module", "session").Str("folder", name).Int("received", len(responses)).Err(err).
			Msg("Fetch failed, returning partial result")
	}
	for _, r := range responses {
		if r == nil {
			continue
		}
		m := message.Decode(r)
		m.Folder = name
		result[r.UID] = m
	}
	expMessagesFetched.Add(int64(len(result)))
	return result
}

// Across searches each folder in order and fetches the matching page from it. The messages of
// all folders are merged in folder order. A folder that fails is logged and skipped, a failure to
// connect is returned.
func (s *Session) Across(
	ctx context.Context,
	refs []folder.Ref,
	criteria *imap.SearchCriteria,
	items []message.DataItem,
	page, pageSize int,
) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := &Page{Page: page, PageSize: pageSize, Messages: message.NewMessages()}
	for _, ref := range refs {
		if err := s.ensureReady(ctx); err != nil {
			return nil, err
		}
		count, uids, err := s.search(ctx, ref, criteria, SearchOptions{
			Page:     page,
			PageSize: pageSize,
			KeepOpen: true,
		})
		if err != nil {
			log.Warn().Str("module", "session").Str("folder", s.folders.Resolve(ref)).Err(err).
				Msg("Skipping folder")
			s.closeFolder()
			continue
		}
		result.FolderCount = count
		name := s.selected
		fetched := s.fetch(ctx, name, uids, items)
		for _, uid := range uids {
			if m, ok := fetched[uid]; ok {
				result.Messages.Put(uid, m)
			}
		}
		s.closeFolder()
	}
	return result, nil
}

// FindUID looks for uid, trying hint first when given, then the inbox, then every other
// selectable folder except All Mail. The first folder holding the UID wins.
func (s *Session) FindUID(
	ctx context.Context,
	uid uint32,
	items []message.DataItem,
	hint folder.Ref,
) (*Lookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	hintName := ""
	if hint != nil {
		hintName = s.folders.Resolve(hint)
		if _, ok := s.resolve(hint); ok {
			if m, err := s.probe(ctx, hintName, uid, items); err != nil {
				return nil, err
			} else if m != nil {
				return &Lookup{Message: m, Folder: hintName, Found: true}, nil
			}
		}
	}

	candidates := make([]string, 0, s.folders.Len()+1)
	if inbox := s.folders.Resolve(folder.Inbox); inbox != hintName {
		candidates = append(candidates, inbox)
	}
	exclude := []folder.Ref{folder.Inbox, folder.AllMail}
	if hint != nil {
		exclude = append(exclude, hint)
	}
	for _, f := range s.folders.Folders(exclude, false) {
		candidates = append(candidates, f.ServerName())
	}
	for _, name := range candidates {
		m, err := s.probe(ctx, name, uid, items)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return &Lookup{Message: m, Folder: name, Found: true, Guessed: true}, nil
		}
	}
	return &Lookup{}, nil
}

// probe fetches uid from one folder. A folder that cannot be selected is treated as not holding
// the message, only context errors are returned.
func (s *Session) probe(ctx context.Context, name string, uid uint32, items []message.DataItem) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.selectFolder(name, true); err != nil {
		log.Debug().Str("module", "session").Str("folder", name).Err(err).Msg("Skipping folder")
		return nil, nil
	}
	defer s.closeFolder()
	return s.fetch(ctx, name, []uint32{uid}, items)[uid], nil
}
