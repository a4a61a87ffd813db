package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultMaxRedirects is the redirect cap used when none is configured.
const DefaultMaxRedirects = 10

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	// Empty means a direct connection.
	ProxyAddress string

	// Timeout bounds a whole request including redirects. Zero means none;
	// the fetcher applies its own per-request timeout anyway.
	Timeout time.Duration

	// MaxRedirects caps redirects. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// Cookie is a raw cookie string sent with every request.
	Cookie string

	// Headers are set on every request, including redirects.
	Headers map[string]string
}

// NewHTTPClient creates the HTTP client used for crawling.
//
// Design decisions:
// - A cookie jar keeps session cookies across pages of one site
// - Redirects are capped to stop loops; the last response is returned
// - Cookie and Headers are injected by the transport so redirects carry them too
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	if opts.ProxyAddress != "" {
		if !isValidProxyAddress(opts.ProxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		dialer, err := proxy.SOCKS5("tcp", opts.ProxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = dialContext(dialer)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if opts.Cookie != "" || len(opts.Headers) > 0 {
		rt = &headerInjectingTransport{
			base:    transport,
			cookie:  opts.Cookie,
			headers: opts.Headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// dialContext adapts a proxy.Dialer, using its context-aware form when
// available.
func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
