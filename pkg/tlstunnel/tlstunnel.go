// Package tlstunnel establishes a second, independent TLS session over an
// already-connected transport.
//
// The outer conn may itself be a *tls.Conn (the TLS-in-TLS case: an encrypted
// hop to the proxy carrying an encrypted session to the target) or any tunnel
// produced by pkg/upstream or pkg/socks5. The inner session's ciphertext
// records ride whatever the outer conn is, so nesting depth is not limited.
package tlstunnel

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"thordata-sdk/pkg/thorerr"
)

// Conn is a TLS session nested inside an established transport. It implements
// net.Conn and is exclusively owned by one logical connection: no concurrent
// readers or writers.
type Conn struct {
	outer   net.Conn
	inner   *tls.Conn
	timeout time.Duration
}

// Client establishes the nested TLS session against hostname. The handshake
// is bounded by a wall-clock deadline derived from timeout, covering all
// round trips, not each one. On failure the outer conn is left open for the
// owner to close.
func Client(outer net.Conn, hostname string, timeout time.Duration) (*Conn, error) {
	cfg := &tls.Config{
		ServerName: hostname,
		MinVersion: tls.VersionTLS12,
	}
	return ClientWithConfig(outer, cfg, timeout)
}

// ClientWithConfig is Client with a caller-supplied TLS configuration.
func ClientWithConfig(outer net.Conn, cfg *tls.Config, timeout time.Duration) (*Conn, error) {
	inner := tls.Client(outer, cfg)

	if timeout > 0 {
		if err := outer.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, &thorerr.NetworkError{Op: "tls tunnel set deadline", Err: err}
		}
	}
	if err := inner.Handshake(); err != nil {
		return nil, classifyHandshake(err)
	}
	if timeout > 0 {
		if err := outer.SetDeadline(time.Time{}); err != nil {
			return nil, &thorerr.NetworkError{Op: "tls tunnel clear deadline", Err: err}
		}
	}

	return &Conn{outer: outer, inner: inner}, nil
}

func classifyHandshake(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &thorerr.TimeoutError{Op: "tls tunnel handshake", Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &thorerr.NetworkError{Op: "tls tunnel handshake", Err: err}
	}
	return &thorerr.ProtocolError{Proto: "tls", Message: "handshake failed: " + err.Error()}
}

// SetTimeout applies a per-operation timeout to subsequent reads and writes,
// mirroring the socket-style timeout knob. Zero disables it.
func (c *Conn) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.outer.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.inner.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.outer.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.inner.Write(p)
}

// Close closes the outer transport unconditionally, best effort. The inner
// session's close_notify is attempted first but its failure never blocks the
// outer close.
func (c *Conn) Close() error {
	_ = c.inner.Close()
	_ = c.outer.Close()
	return nil
}

func (c *Conn) LocalAddr() net.Addr {
	return c.outer.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.outer.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.outer.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.outer.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.outer.SetWriteDeadline(t)
}

// ConnectionState exposes the inner session's negotiated state.
func (c *Conn) ConnectionState() tls.ConnectionState {
	return c.inner.ConnectionState()
}
