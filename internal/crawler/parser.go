package crawler

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/medscrape/medcrawl/internal/urlfilter"
)

// Parser extracts the title and in-scope links from an HTML page.
//
// Design decision: We parse with golang.org/x/net/html and select with
// goquery rather than matching with regular expressions because:
//  1. Malformed HTML, common on departmental sites, still yields a DOM
//  2. CSS selectors keep the extraction rules short and readable
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL

	// filter normalizes and scopes every href.
	filter *urlfilter.Filter
}

// ParseResult contains what the crawler needs from one page.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Links are the normalized, in-scope URLs, sorted and unique.
	Links []string

	// Rejected counts hrefs dropped by the filter.
	Rejected int
}

// NewParser creates a Parser for a page fetched from baseURL.
func NewParser(baseURL string, filter *urlfilter.Filter) (*Parser, error) {
	if filter == nil {
		return nil, errors.New("parser requires a url filter")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Parser{
		baseURL: u,
		filter:  filter,
	}, nil
}

// Parse reads an HTML document and extracts its title and links.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	result := &ParseResult{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	base := p.documentBase(doc)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := p.filter.Normalize(base, href)
		if err != nil {
			result.Rejected++
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		result.Links = append(result.Links, link)
	})
	sort.Strings(result.Links)

	return result, nil
}

// documentBase honors a <base href> element, as browsers do.
func (p *Parser) documentBase(doc *goquery.Document) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return p.baseURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return p.baseURL
	}
	return p.baseURL.ResolveReference(ref)
}
