package session

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/lilycrm/imapmail/pkg/folder"
)

// MarkRead adds \Seen to uids in the selected folder.
func (s *Session) MarkRead(ctx context.Context, uids ...uint32) error {
	return s.storeSeen(ctx, uids, true)
}

// MarkUnread removes \Seen from uids in the selected folder.
func (s *Session) MarkUnread(ctx context.Context, uids ...uint32) error {
	return s.storeSeen(ctx, uids, false)
}

func (s *Session) storeSeen(ctx context.Context, uids []uint32, add bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if s.selected == "" {
		return ErrNoFolderSelected
	}
	if len(uids) == 0 {
		return nil
	}
	if err := s.conn.Store(uids, []string{string(imap.FlagSeen)}, add); err != nil {
		return fmt.Errorf("storing flags in %q: %w", s.selected, err)
	}
	return nil
}

// Status queries status items of ref without selecting it. A nil ref means All Mail.
func (s *Session) Status(ctx context.Context, ref folder.Ref, items ...StatusItem) (map[StatusItem]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	if ref == nil {
		ref = folder.AllMail
	}
	if len(items) == 0 {
		items = []StatusItem{StatusMessages, StatusUIDNext, StatusUIDValidity, StatusUnseen}
	}
	name, _ := s.resolve(ref)
	status, err := s.conn.Status(name, items)
	if err != nil {
		return nil, fmt.Errorf("status of %q: %w", name, err)
	}
	return status, nil
}

// Unread returns the number of unseen messages in ref.
func (s *Session) Unread(ctx context.Context, ref folder.Ref) (uint32, error) {
	status, err := s.Status(ctx, ref, StatusUnseen)
	if err != nil {
		return 0, err
	}
	return status[StatusUnseen], nil
}
