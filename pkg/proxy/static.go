package proxy

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"thordata-sdk/pkg/thorerr"
)

// StaticISP describes a dedicated static ISP proxy. Unlike Config, the
// username is used verbatim: no customer prefix, no geo or session segments.
type StaticISP struct {
	Host     string
	Username string
	Password string
	Port     int
	Protocol string
}

// NewStaticISP applies defaults (port 6666, https) and validates the protocol.
func NewStaticISP(p StaticISP) (*StaticISP, error) {
	if p.Port == 0 {
		p.Port = 6666
	}
	if p.Protocol == "" {
		p.Protocol = "https"
	}
	if err := validateProtocol(p.Protocol); err != nil {
		return nil, err
	}
	return &p, nil
}

// StaticISPFromEnv builds a StaticISP from THORDATA_ISP_HOST,
// THORDATA_ISP_USERNAME and THORDATA_ISP_PASSWORD.
func StaticISPFromEnv() (*StaticISP, error) {
	host := os.Getenv("THORDATA_ISP_HOST")
	username := os.Getenv("THORDATA_ISP_USERNAME")
	password := os.Getenv("THORDATA_ISP_PASSWORD")
	if host == "" || username == "" || password == "" {
		return nil, thorerr.Configf("THORDATA_ISP_HOST, THORDATA_ISP_USERNAME and THORDATA_ISP_PASSWORD are required")
	}
	return NewStaticISP(StaticISP{Host: host, Username: username, Password: password})
}

// BuildUsername returns the raw username unchanged.
func (p *StaticISP) BuildUsername() string {
	return p.Username
}

func (p *StaticISP) urlProtocol() string {
	if p.Protocol == "socks5" {
		return "socks5h"
	}
	return p.Protocol
}

func (p *StaticISP) BuildProxyURL() string {
	u := &url.URL{
		Scheme: p.urlProtocol(),
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	return u.String()
}

func (p *StaticISP) BuildProxyEndpoint() string {
	return fmt.Sprintf("%s://%s", p.urlProtocol(), net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

func (p *StaticISP) BuildBasicAuth() string {
	return p.Username + ":" + p.Password
}

func (p *StaticISP) ProxyMap() map[string]string {
	u := p.BuildProxyURL()
	return map[string]string{"http": u, "https": u}
}
