package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/medscrape/medcrawl/internal/model"
)

// Defaults applied by NewHTTPFetcher.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxBodySize    = 10 * 1024 * 1024
)

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// HTTPFetcher fetches pages with an *http.Client.
// It is safe for concurrent use.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders sets extra request headers. They override the defaults.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize caps how many body bytes are read.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates a fetcher. A nil client uses NewHTTPClient defaults.
func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		client, _ = NewHTTPClient(ClientOptions{}) //nolint:errcheck // no proxy, cannot fail
	}

	f := &HTTPFetcher{
		client:    client,
		userAgent: DefaultUserAgent,
		headers: map[string]string{
			"Accept":          DefaultAccept,
			"Accept-Language": DefaultAcceptLanguage,
		},
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a single GET of rawURL.
// Any failure is returned as a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        ErrUnexpectedStatus,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := readBody(resp.Body, contentType, f.maxBodySize)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	page := &model.Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		Domain:      hostOf(rawURL),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()
	return page, nil
}

// readBody reads at most limit bytes and converts them to UTF-8.
func readBody(r io.Reader, contentType string, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit)
	decoded, err := charset.NewReader(limited, contentType)
	if errors.Is(err, io.EOF) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
