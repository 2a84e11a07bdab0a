// Package upstream routes tunnel traffic through a locally configured
// upstream proxy (SOCKS5 or HTTP CONNECT) before it reaches the Thordata
// gateway.
//
// The upstream is configured with a single string of the form
// scheme://[user[:pass]@]host[:port], normally via THORDATA_UPSTREAM_PROXY.
// Resolution is fail-soft: anything unparseable or unsupported means "no
// upstream, connect directly".
package upstream

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// EnvVar is the environment variable holding the upstream proxy string.
const EnvVar = "THORDATA_UPSTREAM_PROXY"

const defaultPort = 7890

// Scheme is the upstream relay protocol, resolved once at parse time.
type Scheme int

const (
	SchemeSOCKS5 Scheme = iota
	SchemeHTTP
)

func (s Scheme) String() string {
	if s == SchemeSOCKS5 {
		return "socks5"
	}
	return "http"
}

// Descriptor is a normalized upstream proxy address. It is rebuilt on every
// resolution and never mutated.
type Descriptor struct {
	Scheme   Scheme
	Host     string
	Port     int
	Username string
	Password string
}

// Address returns the host:port dial target.
func (d *Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Resolve parses raw into a Descriptor. It returns nil when raw is empty or
// the scheme is unsupported; callers must treat nil as "connect directly".
// socks5 and socks5h normalize to SchemeSOCKS5, http and https to SchemeHTTP.
func Resolve(raw string) *Descriptor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "socks5", "socks5h":
		scheme = SchemeSOCKS5
	case "http", "https":
		scheme = SchemeHTTP
	default:
		return nil
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := defaultPort
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	return &Descriptor{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Username: user,
		Password: pass,
	}
}

// FromEnv resolves the upstream proxy from THORDATA_UPSTREAM_PROXY.
func FromEnv() *Descriptor {
	return Resolve(os.Getenv(EnvVar))
}
