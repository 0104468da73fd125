package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Security selects how the connection to the server is protected.
type Security int

const (
	// SecurityTLS connects with implicit TLS, usually on port 993.
	SecurityTLS Security = iota
	// SecurityStartTLS connects in plaintext and upgrades with STARTTLS.
	SecurityStartTLS
	// SecurityNone never encrypts. Only useful against local test servers.
	SecurityNone
)

// ErrSecurity is returned by ParseSecurity for unknown names.
var ErrSecurity = errors.New("unknown connection security")

// ParseSecurity accepts tls, starttls or none.
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tls", "ssl":
		return SecurityTLS, nil
	case "starttls":
		return SecurityStartTLS, nil
	case "none", "plain", "insecure":
		return SecurityNone, nil
	}
	return SecurityTLS, fmt.Errorf("%w: %q", ErrSecurity, s)
}

func (s Security) String() string {
	switch s {
	case SecurityTLS:
		return "tls"
	case SecurityStartTLS:
		return "starttls"
	case SecurityNone:
		return "none"
	}
	return "unknown"
}

// Credentials holds everything needed to open and authenticate a connection.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Account is a source of credentials, ex: an entry of the accounts file. Credentials is called
// again on every reconnect so rotated passwords are picked up.
type Account interface {
	Credentials() (Credentials, error)
}

// staticAccount serves fixed credentials.
type staticAccount Credentials

func (a staticAccount) Credentials() (Credentials, error) {
	return Credentials(a), nil
}
