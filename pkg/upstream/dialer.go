package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"thordata-sdk/pkg/thorerr"
)

const defaultDialTimeout = 30 * time.Second

// A CONNECT response larger than this is not a proxy talking HTTP.
const maxConnectResponse = 16 * 1024

// Config holds the immutable dialer settings.
type Config struct {
	DialTimeout time.Duration
}

// Dialer mirrors the net.Dialer contract. Implementations hold only immutable
// configuration; every call allocates an independent socket, so a Dialer is
// safe for concurrent use.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialer constructs the outbound dialer for desc. A nil descriptor yields
// a direct dialer.
func NewDialer(cfg Config, desc *Descriptor) Dialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if desc == nil {
		return &directDialer{cfg: cfg}
	}
	if desc.Scheme == SchemeSOCKS5 {
		return &socks5Dialer{cfg: cfg, desc: desc}
	}

	auth := ""
	if desc.Username != "" {
		creds := desc.Username + ":" + desc.Password
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	}
	return &connectDialer{cfg: cfg, desc: desc, auth: auth}
}

// CreateConnection dials address through the upstream described by desc (or
// directly when desc is nil), honoring timeout for the whole setup.
func CreateConnection(ctx context.Context, desc *Descriptor, address string, timeout time.Duration) (net.Conn, error) {
	return NewDialer(Config{DialTimeout: timeout}, desc).DialContext(ctx, "tcp", address)
}

type directDialer struct {
	cfg Config
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, dialError("dial "+address, err)
	}
	return conn, nil
}

// socks5Dialer relays through an upstream SOCKS5 proxy. The library client
// sends domain addressing, so DNS for the target resolves at the proxy.
type socks5Dialer struct {
	cfg  Config
	desc *Descriptor
}

func (d *socks5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, thorerr.Configf("socks5 upstream: unsupported network %q", network)
	}

	secs := int(d.cfg.DialTimeout.Seconds())
	if secs <= 0 {
		secs = 1
	}
	client, err := txsocks5.NewClient(d.desc.Address(), d.desc.Username, d.desc.Password, secs, 0)
	if err != nil {
		return nil, &thorerr.NetworkError{Op: "socks5 upstream init", Err: err}
	}

	conn, err := client.Dial(network, address)
	if err != nil {
		_ = client.Close()
		return nil, dialError("socks5 upstream dial "+address, err)
	}
	return conn, nil
}

// connectDialer relays through an upstream HTTP proxy using CONNECT.
type connectDialer struct {
	cfg  Config
	desc *Descriptor
	auth string
}

func (d *connectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, thorerr.Configf("http upstream: unsupported network %q", network)
	}

	nd := net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := nd.DialContext(ctx, "tcp", d.desc.Address())
	if err != nil {
		return nil, dialError("dial upstream "+d.desc.Address(), err)
	}

	if err := d.connect(conn, address); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *connectDialer) connect(conn net.Conn, address string) error {
	if d.cfg.DialTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(d.cfg.DialTimeout)); err != nil {
			return &thorerr.NetworkError{Op: "upstream connect set deadline", Err: err}
		}
		defer conn.SetDeadline(time.Time{})
	}

	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\n", address)
	fmt.Fprintf(&req, "Host: %s\r\n", address)
	if d.auth != "" {
		fmt.Fprintf(&req, "Proxy-Authorization: %s\r\n", d.auth)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return dialError("upstream connect write", err)
	}

	header, err := readConnectResponse(conn)
	if err != nil {
		return err
	}
	return checkConnectStatus(header)
}

// readConnectResponse reads the CONNECT response one byte at a time until the
// header terminator. Reading in larger chunks could consume bytes that belong
// to the tunneled stream, e.g. the start of a TLS ServerHello the proxy
// relays immediately after its response.
func readConnectResponse(conn net.Conn) (string, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)
	for !bytes.HasSuffix(buf.Bytes(), []byte("\r\n\r\n")) {
		if buf.Len() >= maxConnectResponse {
			return "", &thorerr.ProtocolError{Proto: "http", Message: "CONNECT response exceeds header limit"}
		}
		n, err := conn.Read(b)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", &thorerr.NetworkError{Op: "upstream connect", Err: errors.New("connection closed during CONNECT")}
			}
			return "", dialError("upstream connect read", err)
		}
		if n > 0 {
			buf.WriteByte(b[0])
		}
	}
	return buf.String(), nil
}

// checkConnectStatus parses the status line strictly: the second field must
// be exactly 200, not merely a "200" substring anywhere in the line.
func checkConnectStatus(header string) error {
	line, _, _ := strings.Cut(header, "\r\n")
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] != "200" {
		return &thorerr.ProtocolError{Proto: "http", Message: "upstream CONNECT failed: " + line}
	}
	return nil
}

func dialError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &thorerr.TimeoutError{Op: op, Err: err}
	}
	return &thorerr.NetworkError{Op: op, Err: err}
}
