// Package socks5 implements the client side of the SOCKS5 handshake
// (RFC 1928/1929) over an already-connected socket.
//
// It is used when the destination itself speaks SOCKS5, i.e. the Thordata
// gateway on a socks5 product port. Upstream SOCKS5 relays are handled
// separately by pkg/upstream, which rides on a library client.
//
// The handshake is a chain of state functions (negotiate, authenticate,
// connect, reply), each exchanging one protocol unit, so every transition is
// testable against a scripted pipe.
package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"thordata-sdk/pkg/thorerr"
)

const (
	socksVersion = 0x05

	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF

	authVersion = 0x01

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	repSuccess = 0x00
)

var repMessages = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// Auth carries optional username/password credentials for the userpass
// sub-negotiation.
type Auth struct {
	Username string
	Password string
}

type handshake struct {
	conn net.Conn
	auth Auth
	host string
	port uint16
}

type stateFn func(*handshake) (stateFn, error)

// Connect drives the full handshake on conn and requests a tunnel to address
// (host:port, domain-name addressing). On return the socket carries the
// tunneled stream; the reply's bound-address field has been fully drained so
// no tunnel bytes are lost.
func Connect(conn net.Conn, address string, auth Auth) error {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return thorerr.Configf("invalid target address %q: %v", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return thorerr.Configf("invalid target port %q", portStr)
	}
	if len(host) > 255 {
		return thorerr.Configf("target host too long for SOCKS5 domain addressing: %d bytes", len(host))
	}

	h := &handshake{conn: conn, auth: auth, host: host, port: uint16(port)}
	for state := negotiate; state != nil; {
		state, err = state(h)
		if err != nil {
			return err
		}
	}
	return nil
}

// negotiate offers the supported auth methods and reads the server's choice.
func negotiate(h *handshake) (stateFn, error) {
	methods := []byte{methodNoAuth}
	if h.auth.Username != "" {
		methods = append(methods, methodUserPass)
	}
	req := append([]byte{socksVersion, byte(len(methods))}, methods...)
	if _, err := h.conn.Write(req); err != nil {
		return nil, netError("socks5 negotiate write", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(h.conn, reply[:]); err != nil {
		return nil, netError("socks5 negotiate read", err)
	}
	if reply[0] != socksVersion {
		return nil, protoError("invalid version in method reply: 0x%02x", reply[0])
	}

	switch reply[1] {
	case methodNoAuth:
		return connect, nil
	case methodUserPass:
		if h.auth.Username == "" {
			return nil, protoError("server requires username/password authentication")
		}
		return authenticate, nil
	case methodNoAcceptable:
		return nil, protoError("no acceptable authentication methods")
	default:
		return nil, protoError("unsupported authentication method: 0x%02x", reply[1])
	}
}

// authenticate runs the RFC 1929 username/password sub-negotiation.
func authenticate(h *handshake) (stateFn, error) {
	user := []byte(h.auth.Username)
	pass := []byte(h.auth.Password)
	if len(user) > 255 || len(pass) > 255 {
		return nil, thorerr.Configf("SOCKS5 credentials exceed 255 bytes")
	}

	req := make([]byte, 0, 3+len(user)+len(pass))
	req = append(req, authVersion, byte(len(user)))
	req = append(req, user...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if _, err := h.conn.Write(req); err != nil {
		return nil, netError("socks5 auth write", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(h.conn, reply[:]); err != nil {
		return nil, netError("socks5 auth read", err)
	}
	if reply[1] != repSuccess {
		return nil, protoError("authentication failed (status 0x%02x)", reply[1])
	}
	return connect, nil
}

// connect sends the CONNECT request with domain-name addressing.
func connect(h *handshake) (stateFn, error) {
	host := []byte(h.host)
	req := make([]byte, 0, 7+len(host))
	req = append(req, socksVersion, cmdConnect, 0x00, atypDomain, byte(len(host)))
	req = append(req, host...)
	req = append(req, byte(h.port>>8), byte(h.port))
	if _, err := h.conn.Write(req); err != nil {
		return nil, netError("socks5 connect write", err)
	}
	return readReply, nil
}

// readReply checks the CONNECT reply and drains the bound-address field. Leaving
// the bound address unread would corrupt every subsequent read on the socket.
func readReply(h *handshake) (stateFn, error) {
	var head [4]byte
	if _, err := io.ReadFull(h.conn, head[:]); err != nil {
		return nil, netError("socks5 reply read", err)
	}
	if head[0] != socksVersion {
		return nil, protoError("invalid version in connect reply: 0x%02x", head[0])
	}
	if head[1] != repSuccess {
		msg, ok := repMessages[head[1]]
		if !ok {
			msg = fmt.Sprintf("unknown error 0x%02x", head[1])
		}
		return nil, protoError("connect failed: %s", msg)
	}

	var skip int64
	switch head[3] {
	case atypIPv4:
		skip = 4 + 2
	case atypDomain:
		var n [1]byte
		if _, err := io.ReadFull(h.conn, n[:]); err != nil {
			return nil, netError("socks5 reply read", err)
		}
		skip = int64(n[0]) + 2
	case atypIPv6:
		skip = 16 + 2
	default:
		return nil, protoError("invalid address type in connect reply: 0x%02x", head[3])
	}
	if _, err := io.CopyN(io.Discard, h.conn, skip); err != nil {
		return nil, netError("socks5 reply read", err)
	}
	return nil, nil
}

func netError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &thorerr.TimeoutError{Op: op, Err: err}
	}
	return &thorerr.NetworkError{Op: op, Err: err}
}

func protoError(format string, args ...any) error {
	return &thorerr.ProtocolError{Proto: "socks5", Message: fmt.Sprintf(format, args...)}
}
