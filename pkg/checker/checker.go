// Package checker probes proxy product endpoints over each supported
// protocol, the way the SDK's acceptance tooling exercises a fresh account:
// the same target fetched through http, https and socks5 in turn.
package checker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"thordata-sdk/pkg/fetch"
	"thordata-sdk/pkg/models"
	"thordata-sdk/pkg/proxy"
	"thordata-sdk/pkg/retry"
	"thordata-sdk/pkg/socks5"
	"thordata-sdk/pkg/tlstunnel"
	"thordata-sdk/pkg/upstream"
)

// DefaultTarget echoes the exit IP, which proves the tunnel end to end.
const DefaultTarget = "https://ipinfo.thordata.com"

const defaultTimeout = 30 * time.Second

// Options configures a Checker.
type Options struct {
	// Upstream proxy to relay through; nil means resolve from the
	// environment (an unset variable yields direct connections).
	Upstream *upstream.Descriptor
	Timeout  time.Duration
	Retry    *retry.Config
}

// Checker runs protocol probes. It holds only immutable configuration and is
// safe for concurrent use.
type Checker struct {
	dialer  upstream.Dialer
	timeout time.Duration
	retry   retry.Config
	logger  *slog.Logger
}

func New(logger *slog.Logger, opts Options) *Checker {
	desc := opts.Upstream
	if desc == nil {
		desc = upstream.FromEnv()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc := retry.DefaultConfig()
	if opts.Retry != nil {
		rc = *opts.Retry
	}
	return &Checker{
		dialer:  upstream.NewDialer(upstream.Config{DialTimeout: timeout}, desc),
		timeout: timeout,
		retry:   rc,
		logger:  logger,
	}
}

// Check probes the endpoint described by cfg over each protocol
// concurrently, fetching target through the proxy. One result row is
// produced per protocol; probe failures are recorded, not returned.
func (c *Checker) Check(ctx context.Context, cfg *proxy.Config, protocols []string, target string) []models.ProxyCheck {
	if target == "" {
		target = DefaultTarget
	}

	results := make([]models.ProxyCheck, len(protocols))
	g, ctx := errgroup.WithContext(ctx)
	for i, protocol := range protocols {
		i, protocol := i, protocol
		g.Go(func() error {
			results[i] = c.checkOne(ctx, cfg, protocol, target)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) checkOne(ctx context.Context, cfg *proxy.Config, protocol, target string) models.ProxyCheck {
	check := models.ProxyCheck{
		Product:   string(cfg.Product),
		Protocol:  protocol,
		Host:      cfg.Host,
		Port:      cfg.Port,
		Country:   cfg.Country,
		SessionID: cfg.SessionID,
		Target:    target,
	}

	pc := *cfg
	pc.Protocol = protocol
	npc, err := proxy.NewConfig(pc)
	if err != nil {
		check.ErrorMsg = err.Error()
		return check
	}

	start := time.Now()
	var status int
	switch protocol {
	case "socks5", "socks5h":
		status, err = retry.Do(ctx, c.retry, func() (int, error) {
			return c.probeSOCKS5(ctx, npc, target)
		}, c.logRetry(protocol))
	default:
		var res *fetch.Result
		res, err = fetch.Fetch(ctx, target, fetch.Options{
			Proxy:      npc,
			TimeoutSec: int(c.timeout.Seconds()),
			Retry:      &c.retry,
			OnRetry:    c.logRetry(protocol),
		})
		if res != nil && res.Response != nil {
			status = res.Response.StatusCode
		}
	}
	check.DurationMs = time.Since(start).Milliseconds()
	check.StatusCode = status

	if err != nil {
		check.ErrorMsg = err.Error()
		c.logger.Debug("probe failed", "protocol", protocol, "target", target, "error", err)
		return check
	}
	check.Success = status >= 200 && status < 400
	c.logger.Debug("probe completed", "protocol", protocol, "target", target, "status", status)
	return check
}

func (c *Checker) logRetry(protocol string) retry.OnRetry {
	return func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("retrying probe",
			"protocol", protocol,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}
}

// probeSOCKS5 exercises the raw transport path: dial the gateway (through
// the upstream when configured), run the SOCKS5 handshake with the encoded
// username, wrap the tunnel in a nested TLS session for https targets, and
// issue a minimal request.
func (c *Checker) probeSOCKS5(ctx context.Context, cfg *proxy.Config, target string) (int, error) {
	host, port, path, useTLS, err := splitTarget(target)
	if err != nil {
		return 0, err
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}

	auth := socks5.Auth{Username: cfg.BuildUsername(), Password: cfg.Password}
	if err := socks5.Connect(conn, net.JoinHostPort(host, port), auth); err != nil {
		return 0, err
	}

	stream := conn
	if useTLS {
		tconn, err := tlstunnel.Client(conn, host, c.timeout)
		if err != nil {
			return 0, err
		}
		tconn.SetTimeout(c.timeout)
		stream = tconn
	}

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if _, err := stream.Write([]byte(req)); err != nil {
		return 0, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(stream), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode, nil
}

// splitTarget breaks a probe target URL into dial parts, defaulting the port
// by scheme.
func splitTarget(target string) (host, port, path string, useTLS bool, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", "", false, fmt.Errorf("invalid target %q: %w", target, err)
	}
	switch u.Scheme {
	case "https":
		useTLS = true
		port = "443"
	case "http":
		port = "80"
	default:
		return "", "", "", false, fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", "", false, fmt.Errorf("target %q has no host", target)
	}
	if p := u.Port(); p != "" {
		port = p
	}
	path = u.RequestURI()
	if path == "" {
		path = "/"
	}
	return host, port, path, useTLS, nil
}
