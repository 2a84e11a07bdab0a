// Package fetch makes HTTP requests through Thordata proxy transports.
package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"

	"thordata-sdk/pkg/proxy"
	"thordata-sdk/pkg/retry"
	"thordata-sdk/pkg/thorerr"
)

// Options contains the configuration options for a fetch request.
type Options struct {
	// Proxy config; its transport URL is built automatically.
	Proxy *proxy.Config
	// Raw transport config string, used when Proxy is nil. Empty means a
	// direct connection.
	Transport string
	// HTTP method to use (default: "GET")
	Method string
	// Raw HTTP headers to add (without \r\n)
	Headers []string
	// Timeout in seconds (default: 30)
	TimeoutSec int
	// Retry policy; nil disables retries.
	Retry *retry.Config
	// Observer invoked on each retry.
	OnRetry retry.OnRetry
}

// Result contains the response from a fetch request.
type Result struct {
	Response *http.Response
	Body     []byte
}

// Fetch makes an HTTP request through the configured transport. Responses
// with status >= 400 are mapped into the error taxonomy, which lets the retry
// policy distinguish server errors from client errors.
func Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if opts.Method == "" {
		opts.Method = "GET"
	}
	if opts.TimeoutSec == 0 {
		opts.TimeoutSec = 30
	}

	tr, err := transportFor(opts)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   time.Duration(opts.TimeoutSec) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	do := func() (*Result, error) {
		return doRequest(ctx, httpClient, opts.Method, rawURL, opts.Headers)
	}
	if opts.Retry != nil {
		return retry.Do(ctx, *opts.Retry, do, opts.OnRetry)
	}
	return do()
}

// transportFor picks the right proxying mechanism: http/https forward proxies
// go through net/http's own CONNECT support; socks5 transports (and raw
// transport config strings) dial through an outline-sdk stream dialer.
func transportFor(opts Options) (*http.Transport, error) {
	if opts.Proxy != nil {
		if opts.Proxy.Protocol == "http" || opts.Proxy.Protocol == "https" {
			u, err := url.Parse(opts.Proxy.BuildProxyURL())
			if err != nil {
				return nil, thorerr.Configf("invalid proxy url: %v", err)
			}
			return &http.Transport{Proxy: http.ProxyURL(u)}, nil
		}
		return streamTransport(socksTransportURL(opts.Proxy))
	}
	if opts.Transport != "" {
		return streamTransport(opts.Transport)
	}
	return &http.Transport{}, nil
}

func streamTransport(transportCfg string) (*http.Transport, error) {
	var dialer transport.StreamDialer
	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(transportCfg)
	if err != nil {
		return nil, thorerr.Configf("could not create dialer: %v", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}
	return &http.Transport{DialContext: dialContext}, nil
}

// socksTransportURL rewrites the proxy config into the socks5 scheme the
// stream dialer understands. DNS still resolves at the proxy: the dialer
// passes the hostname through with domain addressing.
func socksTransportURL(c *proxy.Config) string {
	u := &url.URL{
		Scheme: "socks5",
		User:   url.UserPassword(c.BuildUsername(), c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	return u.String()
}

func doRequest(ctx context.Context, client *http.Client, method, rawURL string, headers []string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, thorerr.Configf("failed to create request: %v", err)
	}

	if len(headers) > 0 {
		headerText := strings.Join(headers, "\r\n") + "\r\n\r\n"
		h, err := textproto.NewReader(bufio.NewReader(strings.NewReader(headerText))).ReadMIMEHeader()
		if err != nil {
			return nil, thorerr.Configf("invalid header line: %v", err)
		}
		for name, values := range h {
			for _, value := range values {
				req.Header.Add(name, value)
			}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &thorerr.NetworkError{Op: "read response body", Err: err}
	}

	result := &Result{Response: resp, Body: body}
	if resp.StatusCode >= 400 {
		return result, thorerr.FromStatusCode(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return result, nil
}

func classifyRequestError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &thorerr.TimeoutError{Op: "http request", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &thorerr.TimeoutError{Op: "http request", Err: err}
	}
	return &thorerr.NetworkError{Op: "http request", Err: err}
}
