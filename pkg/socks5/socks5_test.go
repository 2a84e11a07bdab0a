package socks5

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"thordata-sdk/pkg/thorerr"
)

// script runs the server side of a handshake on one end of a pipe. Each step
// reads an exact request and writes a canned reply.
type scriptStep struct {
	expect []byte
	reply  []byte
}

func runScript(t *testing.T, conn net.Conn, steps []scriptStep, trailer []byte) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		defer close(done)
		for i, step := range steps {
			buf := make([]byte, len(step.expect))
			if _, err := io.ReadFull(conn, buf); err != nil {
				done <- err
				return
			}
			if !bytes.Equal(buf, step.expect) {
				done <- fmt.Errorf("step %d: got % x, want % x", i, buf, step.expect)
				return
			}
			if len(step.reply) > 0 {
				if _, err := conn.Write(step.reply); err != nil {
					done <- err
					return
				}
			}
		}
		if len(trailer) > 0 {
			if _, err := conn.Write(trailer); err != nil {
				done <- err
				return
			}
		}
	}()
	return done
}

func connectRequest(host string, port uint16) []byte {
	req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(host))}
	req = append(req, host...)
	return append(req, byte(port>>8), byte(port))
}

func TestConnectNoAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	steps := []scriptStep{
		{expect: []byte{0x05, 0x01, 0x00}, reply: []byte{0x05, 0x00}},
		{
			expect: connectRequest("example.com", 443),
			reply:  []byte{0x05, 0x00, 0x00, 0x01, 10, 0, 0, 1, 0x1F, 0x90},
		},
	}
	done := runScript(t, server, steps, []byte("payload"))

	if err := Connect(client, "example.com:443", Auth{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// The tunnel stream must start exactly where the reply ended.
	buf := make([]byte, 7)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("tunnel read error = %v", err)
	}
	if string(buf) != "payload" {
		t.Errorf("tunnel read = %q, want payload", buf)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnectUserPass(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	authReq := []byte{0x01, 4}
	authReq = append(authReq, "user"...)
	authReq = append(authReq, 4)
	authReq = append(authReq, "pass"...)

	steps := []scriptStep{
		{expect: []byte{0x05, 0x02, 0x00, 0x02}, reply: []byte{0x05, 0x02}},
		{expect: authReq, reply: []byte{0x01, 0x00}},
		{
			expect: connectRequest("gw.example.net", 9999),
			reply:  []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0},
		},
	}
	done := runScript(t, server, steps, nil)

	if err := Connect(client, "gw.example.net:9999", Auth{Username: "user", Password: "pass"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnectAuthRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	authReq := []byte{0x01, 1, 'u', 1, 'p'}
	steps := []scriptStep{
		{expect: []byte{0x05, 0x02, 0x00, 0x02}, reply: []byte{0x05, 0x02}},
		{expect: authReq, reply: []byte{0x01, 0x01}},
	}
	done := runScript(t, server, steps, nil)

	err := Connect(client, "example.com:80", Auth{Username: "u", Password: "p"})
	var pe *thorerr.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Connect() error = %T, want *thorerr.ProtocolError", err)
	}
	if !strings.Contains(pe.Message, "authentication failed") {
		t.Errorf("error message = %q, want authentication failure", pe.Message)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnectNoAcceptableMethods(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	steps := []scriptStep{
		{expect: []byte{0x05, 0x01, 0x00}, reply: []byte{0x05, 0xFF}},
	}
	done := runScript(t, server, steps, nil)

	err := Connect(client, "example.com:80", Auth{})
	var pe *thorerr.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Connect() error = %T, want *thorerr.ProtocolError", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}

	// The client must abort immediately, sending nothing further.
	server.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	if n, err := server.Read(buf); err == nil {
		t.Errorf("client sent %d bytes after rejection", n)
	}
}

func TestConnectServerRefused(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	steps := []scriptStep{
		{expect: []byte{0x05, 0x01, 0x00}, reply: []byte{0x05, 0x00}},
		// Only the 4-byte head: the client stops reading on a failure reply
		// and net.Pipe writes block until consumed.
		{expect: connectRequest("example.com", 80), reply: []byte{0x05, 0x05, 0x00, 0x01}},
	}
	done := runScript(t, server, steps, nil)

	err := Connect(client, "example.com:80", Auth{})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Connect() error = %v, want connection refused", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnectDrainsDomainBoundAddress(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Reply with a domain-typed bound address followed by tunnel data in the
	// same write. The drain must consume exactly the bound address.
	bound := "proxy.local"
	reply := []byte{0x05, 0x00, 0x00, 0x03, byte(len(bound))}
	reply = append(reply, bound...)
	reply = append(reply, 0x1F, 0x90)

	steps := []scriptStep{
		{expect: []byte{0x05, 0x01, 0x00}, reply: []byte{0x05, 0x00}},
		{expect: connectRequest("example.com", 443), reply: reply},
	}
	done := runScript(t, server, steps, []byte("DATA"))

	if err := Connect(client, "example.com:443", Auth{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("tunnel read error = %v", err)
	}
	if string(buf) != "DATA" {
		t.Errorf("tunnel read = %q, want DATA", buf)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnectRejectsBadAddress(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tests := []string{
		"no-port",
		"example.com:notaport",
		"example.com:99999",
	}
	for _, addr := range tests {
		err := Connect(client, addr, Auth{})
		var ce *thorerr.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("Connect(%q) error = %T, want *thorerr.ConfigError", addr, err)
		}
	}
}
