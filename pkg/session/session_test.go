package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/jhillyerd/enmime/v2"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/lilycrm/imapmail/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = session.Credentials{
	Host:     "imap.example.com",
	Port:     993,
	Username: "user@example.com",
	Password: "secret",
}

func testMessage(folder string, n int) string {
	return fmt.Sprintf("From: sender@example.com\r\nTo: user@example.com\r\n"+
		"Subject: %s %d\r\nContent-Type: text/plain\r\n\r\nbody %d\r\n", folder, n, n)
}

// setup returns a server with a gmail style layout and a Session for it.
func setup(t *testing.T) (*test.ServerStub, *session.Session) {
	t.Helper()
	srv := test.NewServer(creds.Username, creds.Password)
	inbox := srv.AddMailbox("INBOX", `\HasNoChildren`)
	for i := 1; i <= 3; i++ {
		inbox.Add(testMessage("inbox", i))
	}
	srv.AddMailbox("[Gmail]", `\Noselect`, `\HasChildren`)
	all := srv.AddMailbox("[Gmail]/All Mail", `\HasNoChildren`, `\All`)
	all.Add(testMessage("all", 1))
	srv.AddMailbox("[Gmail]/Drafts", `\HasNoChildren`, `\Drafts`)
	work := srv.AddMailbox("Work", `\HasNoChildren`)
	for i := 1; i <= 5; i++ {
		work.Add(testMessage("work", i))
	}
	return srv, session.New(srv, creds)
}

func selects(commands []string) []string {
	var result []string
	for _, c := range commands {
		if strings.HasPrefix(c, "EXAMINE ") || strings.HasPrefix(c, "SELECT ") {
			result = append(result, c)
		}
	}
	return result
}

func TestLazyConnect(t *testing.T) {
	srv, s := setup(t)
	assert.Equal(t, session.Disconnected, s.State())
	assert.Equal(t, 0, srv.Dials())

	reg, err := s.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Ready, s.State())
	assert.Equal(t, 1, srv.Dials())
	assert.Equal(t, "[Gmail]/All Mail", reg.Resolve(folder.AllMail))
	assert.Equal(t, []string{"LOGIN user@example.com", "LIST"}, srv.Commands())

	_, err = s.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Dials(), "ready session must not redial")
}

func TestReconnectAfterServerLogout(t *testing.T) {
	srv, s := setup(t)
	_, err := s.Folders(context.Background())
	require.NoError(t, err)

	srv.Drop()
	srv.ResetCommands()
	count, uids, err := s.Search(context.Background(), folder.Inbox, nil, session.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"LOGOUT", "LOGIN user@example.com", "LIST"}, srv.Commands()[:3],
		"stale connection is logged out before redialing")
	assert.Equal(t, 3, count)
	assert.Equal(t, []uint32{1, 2, 3}, uids)
	assert.Equal(t, 2, srv.Dials())
	assert.Equal(t, session.Ready, s.State())
}

func TestReconnectAfterLogout(t *testing.T) {
	srv, s := setup(t)
	_, err := s.Folders(context.Background())
	require.NoError(t, err)

	s.Logout()
	s.Logout()
	assert.Equal(t, session.Disconnected, s.State())

	_, err = s.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Dials())
}

func TestLoginFailure(t *testing.T) {
	srv, _ := setup(t)
	bad := creds
	bad.Password = "wrong"
	s := session.New(srv, bad)

	_, err := s.Folders(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHENTICATIONFAILED")
	assert.Equal(t, session.Disconnected, s.State())
	assert.Contains(t, srv.Commands(), "LOGOUT")
}

type accountFunc func() (session.Credentials, error)

func (f accountFunc) Credentials() (session.Credentials, error) { return f() }

func TestAccountCredentialsReloaded(t *testing.T) {
	srv, _ := setup(t)
	calls := 0
	s := session.NewForAccount(srv, accountFunc(func() (session.Credentials, error) {
		calls++
		return creds, nil
	}))
	_, err := s.Folders(context.Background())
	require.NoError(t, err)
	srv.Drop()
	_, err = s.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	failing := session.NewForAccount(srv, accountFunc(func() (session.Credentials, error) {
		return session.Credentials{}, errors.New("keyring locked")
	}))
	_, err = failing.Folders(context.Background())
	assert.ErrorContains(t, err, "keyring locked")
	assert.Equal(t, session.Disconnected, failing.State())
}

func TestDialFailure(t *testing.T) {
	srv, s := setup(t)
	srv.DialErr = errors.New("connection refused")
	_, err := s.Folders(context.Background())
	assert.ErrorContains(t, err, "imap.example.com:993")
	assert.Equal(t, session.Disconnected, s.State())
}

func TestCancelledContext(t *testing.T) {
	srv, s := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.Search(ctx, folder.Inbox, nil, session.SearchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, srv.Dials())
}

func TestSearchPagination(t *testing.T) {
	srv := test.NewServer(creds.Username, creds.Password)
	inbox := srv.AddMailbox("INBOX")
	for i := 1; i <= 30; i++ {
		inbox.Add(testMessage("inbox", i))
	}
	s := session.New(srv, creds)
	ctx := context.Background()

	count, uids, err := s.Search(ctx, folder.Inbox, nil, session.SearchOptions{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.Equal(t, []uint32{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, uids)

	count, uids, err = s.Search(ctx, folder.Inbox, nil, session.SearchOptions{Page: 4, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.Empty(t, uids)

	_, uids, err = s.Search(ctx, folder.Inbox, nil, session.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, uids, 30)
}

func TestSearchCriteria(t *testing.T) {
	srv, s := setup(t)
	srv.Mailbox("INBOX").Message(2).Flags = []string{`\Seen`}

	_, uids, err := s.Search(context.Background(), folder.Inbox,
		&imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}, session.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, uids)
}

func TestSearchSelectsReadOnly(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()
	_, err := s.Folders(ctx)
	require.NoError(t, err)

	srv.ResetCommands()
	_, _, err = s.Search(ctx, folder.Inbox, nil, session.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"EXAMINE INBOX", "UID SEARCH", "CLOSE"}, srv.Commands())

	srv.ResetCommands()
	_, _, err = s.Search(ctx, folder.Name("Work"), nil, session.SearchOptions{ReadWrite: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT Work", "UID SEARCH", "CLOSE"}, srv.Commands())
}

func TestSearchUnknownFolder(t *testing.T) {
	srv, s := setup(t)
	count, uids, err := s.Search(context.Background(), folder.Name("Nope"), nil, session.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NotNil(t, uids)
	assert.Empty(t, uids)
	assert.Empty(t, selects(srv.Commands()))
}

func TestSearchEmptyRegistry(t *testing.T) {
	srv, s := setup(t)
	srv.NilListing = true
	ctx := context.Background()

	reg, err := s.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())

	count, _, err := s.Search(ctx, folder.Inbox, nil, session.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, uids, err := s.Search(ctx, folder.Inbox, nil, session.SearchOptions{Page: 1 << 62, PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Empty(t, uids)

	_, _, err = s.Search(ctx, folder.Name("Nope"), nil, session.SearchOptions{})
	assert.Error(t, err, "unknown names reach the server when the listing was empty")
}

func TestSearchKeepOpenThenFetch(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()
	_, uids, err := s.Search(ctx, folder.Name("Work"), nil, session.SearchOptions{KeepOpen: true})
	require.NoError(t, err)

	srv.ResetCommands()
	msgs, err := s.Fetch(ctx, folder.Name("Work"), uids[:2], message.HeaderItems, session.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, []string{"UID FETCH [1 2]", "CLOSE"}, srv.Commands())
}

func TestFetch(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()

	msgs, err := s.Fetch(ctx, folder.Inbox, []uint32{2, 3, 99}, message.HeaderItems, session.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	m := msgs[2]
	assert.Equal(t, "inbox 2", m.Subject)
	assert.Equal(t, "INBOX", m.Folder)
	assert.True(t, m.IsPlain)
	assert.Empty(t, m.PlainBody)
	assert.NotContains(t, msgs, uint32(99))
	assert.Equal(t, "EXAMINE INBOX", selects(srv.Commands())[0])

	msgs, err = s.Fetch(ctx, folder.Name("Work"), []uint32{4}, message.FullItems, session.FetchOptions{})
	require.NoError(t, err)
	require.Contains(t, msgs, uint32(4))
	assert.Equal(t, "body 4\r\n", msgs[4].PlainBody)
	assert.Equal(t, "Work", msgs[4].Folder)
}

func TestFetchNoUIDs(t *testing.T) {
	srv, s := setup(t)
	msgs, err := s.Fetch(context.Background(), folder.Inbox, nil, message.HeaderItems, session.FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	for _, c := range srv.Commands() {
		assert.False(t, strings.HasPrefix(c, "UID FETCH"), c)
	}
}

func TestFetchPartialFailure(t *testing.T) {
	srv, s := setup(t)
	mb := srv.AddMailbox(test.FetchErrMailbox)
	for i := 1; i <= 3; i++ {
		mb.Add(testMessage("broken", i))
	}
	msgs, err := s.Fetch(context.Background(), folder.Name(test.FetchErrMailbox), []uint32{1, 2, 3},
		message.HeaderItems, session.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Contains(t, msgs, uint32(1))
}

func TestFetchSelectFailure(t *testing.T) {
	_, s := setup(t)
	_, err := s.Fetch(context.Background(), folder.Name("Nope"), []uint32{1}, message.HeaderItems,
		session.FetchOptions{})
	assert.Error(t, err)
}

func TestAcross(t *testing.T) {
	_, s := setup(t)
	page, err := s.Across(context.Background(), []folder.Ref{folder.Inbox, folder.Name("Work")}, nil,
		message.HeaderItems, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)
	// Count of the last folder, not the total.
	assert.Equal(t, 5, page.FolderCount)

	// UIDs 1-3 exist in both folders, the later folder replaces them in place.
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, page.Messages.UIDs())
	m, ok := page.Messages.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Work", m.Folder)
	assert.Equal(t, "work 1", m.Subject)
}

func TestAcrossPaged(t *testing.T) {
	_, s := setup(t)
	page, err := s.Across(context.Background(), []folder.Ref{folder.Name("Work"), folder.Inbox}, nil,
		message.HeaderItems, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.FolderCount)
	assert.Equal(t, []uint32{3, 4}, page.Messages.UIDs())
	m, _ := page.Messages.Get(3)
	assert.Equal(t, "INBOX", m.Folder)
	m, _ = page.Messages.Get(4)
	assert.Equal(t, "Work", m.Folder)
}

func TestAcrossSkipsFailingFolder(t *testing.T) {
	srv, s := setup(t)
	srv.AddMailbox(test.SelectErrMailbox).Add(testMessage("broken", 1))

	page, err := s.Across(context.Background(), []folder.Ref{folder.Inbox, folder.Name(test.SelectErrMailbox)},
		nil, message.HeaderItems, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.FolderCount)
	assert.Equal(t, []uint32{1, 2, 3}, page.Messages.UIDs())

	page, err = s.Across(context.Background(), []folder.Ref{folder.Inbox, folder.Name("Nope")},
		nil, message.HeaderItems, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.FolderCount)
	assert.Equal(t, 3, page.Messages.Len())
}

func TestAcrossConnectFailure(t *testing.T) {
	srv, s := setup(t)
	srv.DialErr = errors.New("connection refused")
	_, err := s.Across(context.Background(), []folder.Ref{folder.Inbox}, nil, message.HeaderItems, 1, 10)
	assert.Error(t, err)
}

func TestFindUID(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()

	got, err := s.FindUID(ctx, 2, message.HeaderItems, folder.Name("Work"))
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.False(t, got.Guessed)
	assert.Equal(t, "Work", got.Folder)
	assert.Equal(t, "work 2", got.Message.Subject)

	got, err = s.FindUID(ctx, 5, message.HeaderItems, nil)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.True(t, got.Guessed)
	assert.Equal(t, "Work", got.Folder)

	got, err = s.FindUID(ctx, 2, message.HeaderItems, nil)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", got.Folder, "inbox is searched first")
	assert.True(t, got.Guessed)

	srv.ResetCommands()
	got, err = s.FindUID(ctx, 99, message.HeaderItems, folder.Name("Work"))
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Nil(t, got.Message)
	assert.Equal(t, []string{"EXAMINE Work", "EXAMINE INBOX", "EXAMINE [Gmail]/Drafts"}, selects(srv.Commands()))
}

func TestFindUIDInboxHint(t *testing.T) {
	srv, s := setup(t)
	_, err := s.Folders(context.Background())
	require.NoError(t, err)
	srv.ResetCommands()

	got, err := s.FindUID(context.Background(), 99, message.HeaderItems, folder.Inbox)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, []string{"EXAMINE INBOX", "EXAMINE [Gmail]/Drafts", "EXAMINE Work"}, selects(srv.Commands()))
}

func TestFindUIDSkipsUnselectable(t *testing.T) {
	srv, s := setup(t)
	srv.AddMailbox(test.SelectErrMailbox)
	srv.AddMailbox("Later").Add(testMessage("later", 1))
	srv.Mailbox("INBOX").Messages = nil
	srv.Mailbox("Work").Messages = nil

	got, err := s.FindUID(context.Background(), 1, message.HeaderItems, nil)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "Later", got.Folder)
}

func TestMarkRead(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkRead(ctx, 1), session.ErrNoFolderSelected)

	exists, err := s.OpenFolder(ctx, folder.Inbox, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), exists)

	require.NoError(t, s.MarkRead(ctx, 1, 2))
	inbox := srv.Mailbox("INBOX")
	assert.Equal(t, []string{`\Seen`}, inbox.Message(1).Flags)
	assert.Equal(t, []string{`\Seen`}, inbox.Message(2).Flags)
	assert.Empty(t, inbox.Message(3).Flags)

	require.NoError(t, s.MarkUnread(ctx, 2))
	assert.Empty(t, inbox.Message(2).Flags)
	require.NoError(t, s.MarkRead(ctx))

	s.CloseFolder()
	assert.ErrorIs(t, s.MarkUnread(ctx, 1), session.ErrNoFolderSelected)
}

func TestMarkReadReadOnly(t *testing.T) {
	_, s := setup(t)
	ctx := context.Background()
	_, err := s.OpenFolder(ctx, folder.Inbox, true)
	require.NoError(t, err)
	assert.Error(t, s.MarkRead(ctx, 1))
}

func TestStatus(t *testing.T) {
	srv, s := setup(t)
	ctx := context.Background()
	srv.Mailbox("INBOX").Message(1).Flags = []string{`\Seen`}

	status, err := s.Status(ctx, folder.Inbox)
	require.NoError(t, err)
	assert.Equal(t, map[session.StatusItem]uint32{
		session.StatusMessages:    3,
		session.StatusUIDNext:     4,
		session.StatusUIDValidity: 1,
		session.StatusUnseen:      2,
	}, status)

	srv.ResetCommands()
	status, err = s.Status(ctx, nil, session.StatusMessages)
	require.NoError(t, err)
	assert.Equal(t, map[session.StatusItem]uint32{session.StatusMessages: 1}, status)
	assert.Equal(t, []string{"STATUS [Gmail]/All Mail"}, srv.Commands())

	unread, err := s.Unread(ctx, folder.Name("Work"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), unread)

	_, err = s.Status(ctx, folder.Name("Nope"))
	assert.Error(t, err)
}

func TestSaveDraft(t *testing.T) {
	srv, s := setup(t)
	raw := "From: user@example.com\nSubject: Draft\n\nline one\nline two\n"

	uid, err := s.SaveDraft(context.Background(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), uid)

	drafts := srv.Mailbox("[Gmail]/Drafts")
	require.Len(t, drafts.Messages, 1)
	m := drafts.Messages[0]
	assert.Equal(t, []string{`\Draft`}, m.Flags)
	assert.Equal(t, "From: user@example.com\r\nSubject: Draft\r\n\r\nline one\r\nline two\r\n", string(m.Raw))
	assert.Equal(t, time.UTC, m.InternalDate.Location())
	assert.Contains(t, selects(srv.Commands()), "SELECT [Gmail]/Drafts")
	assert.Equal(t, "CLOSE", srv.Commands()[len(srv.Commands())-1])
}

func TestSaveDraftNoAppendUID(t *testing.T) {
	srv, s := setup(t)
	srv.NoAppendUID = true
	_, err := s.SaveDraft(context.Background(), []byte("Subject: Draft\r\n\r\nbody\r\n"))
	assert.ErrorIs(t, err, session.ErrNoAppendUID)
	assert.Len(t, srv.Mailbox("[Gmail]/Drafts").Messages, 1)
}

func TestSaveDraftInvalid(t *testing.T) {
	srv, s := setup(t)
	_, err := s.SaveDraft(context.Background(), []byte("no header here\r\n\r\nbody\r\n"))
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Dials())
}

func TestSaveDraftMessage(t *testing.T) {
	srv, s := setup(t)
	part, err := enmime.Builder().
		From("User", "user@example.com").
		To("Friend", "friend@example.com").
		Subject("Built draft").
		Text([]byte("hello there\n")).
		Build()
	require.NoError(t, err)

	uid, err := s.SaveDraftMessage(context.Background(), part)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), uid)

	raw := string(srv.Mailbox("[Gmail]/Drafts").Messages[0].Raw)
	assert.Contains(t, raw, "Subject: Built draft\r\n")
	assert.NotContains(t, strings.ReplaceAll(raw, "\r\n", ""), "\n")
}
