// Package fetcher retrieves pages over HTTP for the crawler.
//
// A fetch is a single GET with a per-request timeout. Only 2xx responses
// count as success; every other outcome is a *FetchError, which the
// crawler absorbs into a partial result instead of aborting the crawl.
// There are no retries. Bodies are capped and decoded to UTF-8.
//
// NewHTTPClient builds the underlying *http.Client: a cookie jar, a
// redirect cap and, when configured, a SOCKS5 proxy dialer.
package fetcher
