package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kelseyhightower/envconfig"
	"github.com/lilycrm/imapmail/pkg/session"
)

const (
	prefix      = "imapmail"
	tableFormat = `imapmail is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("invalid configuration")

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"INFO" desc:"DEBUG, INFO, WARN, or ERROR"`
	IMAP     IMAP
	Fetch    Fetch
}

// IMAP contains the server connection configuration. Host may be left empty when the account
// comes from the accounts file.
type IMAP struct {
	Host               string `desc:"IMAP server hostname"`
	Port               int    `required:"true" default:"993" desc:"IMAP server port"`
	Username           string `desc:"Login username"`
	Password           string `desc:"Login password, empty to use the keyring"`
	Security           string `required:"true" default:"tls" desc:"tls, starttls, or none"`
	InsecureSkipVerify bool   `default:"false" desc:"Accept any server certificate"`
	Trace              bool   `default:"false" desc:"Log the protocol exchange at DEBUG level"`
	Accounts           string `desc:"Accounts file (YAML), ex: ~/.config/imapmail/accounts.yaml"`
	Account            string `desc:"Accounts file entry to use"`
}

// Fetch contains listing defaults.
type Fetch struct {
	PageSize int  `required:"true" default:"25" desc:"Messages per page"`
	Body     bool `default:"false" desc:"Fetch full bodies instead of headers"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	if err := envconfig.Process(prefix, c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate checks field values envconfig cannot.
func (c *Root) Validate() error {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	if c.IMAP.Port < 1 || c.IMAP.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.IMAP.Port)
	}
	if _, err := session.ParseSecurity(c.IMAP.Security); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Fetch.PageSize < 1 {
		return fmt.Errorf("%w: page size %d", ErrInvalid, c.Fetch.PageSize)
	}
	return nil
}

// Credentials returns the connection settings held in the environment.
func (c *IMAP) Credentials() (session.Credentials, error) {
	sec, err := session.ParseSecurity(c.Security)
	if err != nil {
		return session.Credentials{}, err
	}
	if c.Host == "" {
		return session.Credentials{}, fmt.Errorf("%w: no IMAP host", ErrInvalid)
	}
	return session.Credentials{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Security: sec,
	}, nil
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
