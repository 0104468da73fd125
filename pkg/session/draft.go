package session

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap/v2"
	gomessage "github.com/emersion/go-message"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/rs/zerolog/log"
)

// Encoder is a pre-built message that can write itself out, ex: an *enmime.Part.
type Encoder interface {
	Encode(w io.Writer) error
}

// SaveDraft appends raw to the Drafts folder flagged \Draft and returns the UID the server
// assigned.
func (s *Session) SaveDraft(ctx context.Context, raw []byte) (uint32, error) {
	if _, err := gomessage.Read(bytes.NewReader(raw)); err != nil &&
		!gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return 0, fmt.Errorf("parsing draft: %w", err)
	}
	literal := normalizeCRLF(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	name, _ := s.resolve(folder.Drafts)
	if _, err := s.selectFolder(name, false); err != nil {
		return 0, err
	}
	defer s.closeFolder()

	uid, err := s.conn.Append(name, []string{string(imap.FlagDraft)}, s.now().UTC(), literal)
	if err != nil {
		return 0, fmt.Errorf("appending draft to %q: %w", name, err)
	}
	if uid == 0 {
		return 0, ErrNoAppendUID
	}
	expDraftsSaved.Add(1)
	log.Debug().Str("module", "session").Str("folder", name).Uint32("uid", uid).Msg("Saved draft")
	return uid, nil
}

// SaveDraftMessage encodes e and saves it with SaveDraft.
func (s *Session) SaveDraftMessage(ctx context.Context, e Encoder) (uint32, error) {
	buf := &bytes.Buffer{}
	if err := e.Encode(buf); err != nil {
		return 0, fmt.Errorf("encoding draft: %w", err)
	}
	return s.SaveDraft(ctx, buf.Bytes())
}

// normalizeCRLF converts bare LF and CR line endings to CRLF.
func normalizeCRLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
}
