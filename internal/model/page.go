package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Page is a single fetched document.
// The fetcher fills the transport fields; the crawler fills Title and Domain.
type Page struct {
	// URL is the normalized URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after redirects. Relative links resolve against it.
	FinalURL string `json:"final_url"`

	// Domain is the crawl's root authority.
	Domain string `json:"domain"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type response header.
	ContentType string `json:"content_type"`

	// Title is the text of the <title> element, if any.
	Title string `json:"title,omitempty"`

	// Body is the response body decoded to UTF-8.
	Body []byte `json:"-"`

	// Hash is the SHA-256 of Body, hex encoded.
	Hash string `json:"hash"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// ComputeHash sets Hash from Body. Empty bodies leave Hash empty.
func (p *Page) ComputeHash() {
	if len(p.Body) == 0 {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256(p.Body)
	p.Hash = hex.EncodeToString(sum[:])
}

// IsHTML reports whether the page should be parsed for links.
// A missing Content-Type is treated as HTML, as browsers do for sniffed pages.
func (p *Page) IsHTML() bool {
	if p.ContentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.ContentType), "html")
}

// ExtractionJob is handed to the content extraction service after a page
// was crawled successfully. The service fetches and chunks the page itself.
type ExtractionJob struct {
	// URL is the crawled page.
	URL string `json:"url"`

	// Domain is the crawl's root authority, used to scope downstream indexes.
	Domain string `json:"domain"`

	// Title is the page title seen by the crawler.
	Title string `json:"title,omitempty"`

	// ContentHash lets the consumer skip unchanged pages.
	ContentHash string `json:"content_hash,omitempty"`

	// CrawledAt is when the crawler fetched the page.
	CrawledAt time.Time `json:"crawled_at"`
}

// NewExtractionJob builds the hand-off message for a fetched page.
func NewExtractionJob(p *Page) ExtractionJob {
	return ExtractionJob{
		URL:         p.URL,
		Domain:      p.Domain,
		Title:       p.Title,
		ContentHash: p.Hash,
		CrawledAt:   p.FetchedAt,
	}
}
