package proxy

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"thordata-sdk/pkg/thorerr"
)

// usernamePrefix is the customer marker the gateway expects in front of every
// account username.
const usernamePrefix = "td-customer-"

var validContinents = map[string]bool{
	"af": true, // Africa
	"an": true, // Antarctica
	"as": true, // Asia
	"eu": true, // Europe
	"na": true, // North America
	"oc": true, // Oceania
	"sa": true, // South America
}

var countryPattern = regexp.MustCompile(`^[a-zA-Z]{2}$`)

// Config describes one logical proxy connection: account credentials, the
// product endpoint, and the geo/session targeting encoded into the username.
// Build it with NewConfig and treat the result as immutable.
type Config struct {
	Username string
	Password string
	Product  Product
	Host     string
	Port     int
	Protocol string // http, https, socks5 or socks5h

	// Geo-targeting
	Continent string
	Country   string
	State     string
	City      string
	ASN       string

	// Session control
	SessionID       string
	SessionDuration int // minutes, 1-90
}

// NewConfig applies product defaults and validates the result. All validation
// failures are *thorerr.ConfigError.
func NewConfig(c Config) (*Config, error) {
	if c.Product == "" {
		c.Product = Residential
	}
	c.Product = Product(strings.ToLower(string(c.Product)))
	if !c.Product.valid() {
		return nil, thorerr.Configf("invalid proxy product: %q", c.Product)
	}
	if c.Host == "" {
		c.Host = c.Product.DefaultHost()
	}
	if c.Port == 0 {
		c.Port = c.Product.DefaultPort()
	}
	if c.Protocol == "" {
		c.Protocol = "https"
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if err := validateProtocol(c.Protocol); err != nil {
		return err
	}
	if c.SessionDuration != 0 {
		if c.SessionDuration < 1 || c.SessionDuration > 90 {
			return thorerr.Configf("session duration must be between 1 and 90 minutes, got %d", c.SessionDuration)
		}
		if c.SessionID == "" {
			return thorerr.Configf("session duration requires a session id")
		}
	}
	if c.ASN != "" && c.Country == "" {
		return thorerr.Configf("ASN targeting requires a country")
	}
	if c.Continent != "" && !validContinents[strings.ToLower(c.Continent)] {
		return thorerr.Configf("invalid continent code: %q", c.Continent)
	}
	if c.Country != "" && !countryPattern.MatchString(c.Country) {
		return thorerr.Configf("invalid country code: %q", c.Country)
	}
	return nil
}

func validateProtocol(protocol string) error {
	switch protocol {
	case "http", "https", "socks5", "socks5h":
		return nil
	}
	return thorerr.Configf("invalid protocol: %q", protocol)
}

// BuildUsername encodes the geo and session targeting into the gateway
// username. Segment order is fixed: continent, country, state, city, asn,
// sessid, sesstime. The customer prefix is never applied twice.
func (c *Config) BuildUsername() string {
	base := c.Username
	if !strings.HasPrefix(base, usernamePrefix) {
		base = usernamePrefix + base
	}

	parts := []string{base}
	if c.Continent != "" {
		parts = append(parts, "continent-"+strings.ToLower(c.Continent))
	}
	if c.Country != "" {
		parts = append(parts, "country-"+strings.ToLower(c.Country))
	}
	if c.State != "" {
		parts = append(parts, "state-"+strings.ToLower(c.State))
	}
	if c.City != "" {
		parts = append(parts, "city-"+strings.ToLower(c.City))
	}
	if c.ASN != "" {
		asn := strings.ToUpper(c.ASN)
		if !strings.HasPrefix(asn, "AS") {
			asn = "AS" + asn
		}
		parts = append(parts, "asn-"+asn)
	}
	if c.SessionID != "" {
		parts = append(parts, "sessid-"+c.SessionID)
	}
	if c.SessionDuration != 0 {
		parts = append(parts, "sesstime-"+strconv.Itoa(c.SessionDuration))
	}
	return strings.Join(parts, "-")
}

// urlProtocol rewrites socks5 to socks5h so DNS resolution happens at the
// proxy instead of locally.
func (c *Config) urlProtocol() string {
	if c.Protocol == "socks5" {
		return "socks5h"
	}
	return c.Protocol
}

// BuildProxyURL returns the full transport URL with embedded credentials.
func (c *Config) BuildProxyURL() string {
	u := &url.URL{
		Scheme: c.urlProtocol(),
		User:   url.UserPassword(c.BuildUsername(), c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	return u.String()
}

// BuildProxyEndpoint returns the transport URL without credentials, for
// transports that expect separate basic auth.
func (c *Config) BuildProxyEndpoint() string {
	return fmt.Sprintf("%s://%s", c.urlProtocol(), net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// BuildBasicAuth returns "username:password" for Proxy-Authorization headers.
func (c *Config) BuildBasicAuth() string {
	return c.BuildUsername() + ":" + c.Password
}

// ProxyMap returns the drop-in {"http": url, "https": url} map generic HTTP
// clients expect.
func (c *Config) ProxyMap() map[string]string {
	u := c.BuildProxyURL()
	return map[string]string{"http": u, "https": u}
}
