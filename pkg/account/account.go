// Package account loads named IMAP accounts from a YAML file.
package account

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lilycrm/imapmail/pkg/credential"
	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/spf13/viper"
)

// ErrNotFound is returned by Find for unknown account names.
var ErrNotFound = errors.New("account not found")

// Account is one entry of the accounts file.
type Account struct {
	// Name is the label used to pick the account on the command line.
	Name     string `mapstructure:"name" yaml:"name"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	// Password may be empty, the keyring is consulted then.
	Password string `mapstructure:"password" yaml:"password"`
	Security string `mapstructure:"security" yaml:"security"`

	secrets credential.Store
}

var _ session.Account = &Account{}

// File is the accounts file.
type File struct {
	Default  string     `mapstructure:"default" yaml:"default"`
	Accounts []*Account `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultPath returns ~/.config/imapmail/accounts.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "accounts.yaml")
	}
	return filepath.Join(home, ".config", "imapmail", "accounts.yaml")
}

// Load reads the accounts file at path. A missing file yields no accounts. Passwords left out of
// the file are looked up in secrets.
func Load(path string, secrets credential.Store) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("reading accounts %s: %w", path, err)
	}

	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("parsing accounts %s: %w", path, err)
	}
	for i, a := range f.Accounts {
		if a == nil {
			continue
		}
		if a.Name == "" {
			a.Name = a.Username
		}
		if a.Port == 0 {
			a.Port = 993
		}
		if a.Security == "" {
			a.Security = "tls"
		}
		if a.Host == "" {
			return nil, fmt.Errorf("parsing accounts %s: entry %d has no host", path, i)
		}
		a.secrets = secrets
	}
	return f, nil
}

// Find returns the account called name, or the default account when name is empty.
func (f *File) Find(name string) (*Account, error) {
	if name == "" {
		name = f.Default
	}
	for _, a := range f.Accounts {
		if a == nil {
			continue
		}
		if name == "" || a.Name == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Credentials implements session.Account. It is called on every connect, so a password changed
// in the keyring takes effect on the next reconnect.
func (a *Account) Credentials() (session.Credentials, error) {
	sec, err := session.ParseSecurity(a.Security)
	if err != nil {
		return session.Credentials{}, err
	}
	password := a.Password
	if password == "" && a.secrets != nil {
		password, err = a.secrets.Get(credential.Key(a.Username, a.Host))
		if err != nil {
			return session.Credentials{}, err
		}
	}
	return session.Credentials{
		Host:     a.Host,
		Port:     a.Port,
		Username: a.Username,
		Password: password,
		Security: sec,
	}, nil
}
