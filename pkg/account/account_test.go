package account

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsYAML = `
default: work
accounts:
  - name: personal
    host: imap.gmail.com
    username: me@gmail.com
    password: hunter2
  - name: work
    host: mail.example.com
    port: 143
    username: me@example.com
    security: starttls
`

type secretStub map[string]string

func (s secretStub) Get(key string) (string, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return "", errors.New("not in keyring")
}

func (s secretStub) Set(key, value string) error { s[key] = value; return nil }
func (s secretStub) Delete(key string) error     { delete(s, key); return nil }

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	secrets := secretStub{"me@example.com@mail.example.com": "from-keyring"}
	f, err := Load(writeFile(t, accountsYAML), secrets)
	require.NoError(t, err)
	require.Len(t, f.Accounts, 2)

	personal, err := f.Find("personal")
	require.NoError(t, err)
	creds, err := personal.Credentials()
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{
		Host:     "imap.gmail.com",
		Port:     993,
		Username: "me@gmail.com",
		Password: "hunter2",
		Security: session.SecurityTLS,
	}, creds)

	work, err := f.Find("")
	require.NoError(t, err)
	assert.Equal(t, "work", work.Name)
	creds, err = work.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", creds.Password)
	assert.Equal(t, session.SecurityStartTLS, creds.Security)
	assert.Equal(t, "mail.example.com:143", creds.Addr())

	delete(secrets, "me@example.com@mail.example.com")
	_, err = work.Credentials()
	assert.Error(t, err)

	_, err = f.Find("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)
	assert.Empty(t, f.Accounts)
	_, err = f.Find("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadNoHost(t *testing.T) {
	_, err := Load(writeFile(t, "accounts:\n  - username: me\n"), nil)
	assert.ErrorContains(t, err, "no host")
}

func TestFindFirstWithoutDefault(t *testing.T) {
	f, err := Load(writeFile(t, "accounts:\n  - host: a.example.com\n    username: a\n  - host: b.example.com\n    username: b\n"), nil)
	require.NoError(t, err)
	a, err := f.Find("")
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name)
}
