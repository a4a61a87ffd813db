package model

import (
	"encoding/json"
	"sort"
)

// URLSet is a set of normalized URLs.
// The zero value is not usable; create one with NewURLSet or make.
type URLSet map[string]struct{}

// NewURLSet returns a set containing the given URLs.
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

// Add inserts a URL into the set.
func (s URLSet) Add(u string) {
	s[u] = struct{}{}
}

// Has reports whether the URL is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Len returns the number of URLs in the set.
func (s URLSet) Len() int {
	return len(s)
}

// Union adds every URL of other to s.
func (s URLSet) Union(other URLSet) {
	for u := range other {
		s[u] = struct{}{}
	}
}

// Sorted returns the URLs in lexical order.
func (s URLSet) Sorted() []string {
	urls := make([]string, 0, len(s))
	for u := range s {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Difference returns the URLs in s that are not in other, sorted.
func (s URLSet) Difference(other URLSet) []string {
	diff := make([]string, 0)
	for u := range s {
		if !other.Has(u) {
			diff = append(diff, u)
		}
	}
	sort.Strings(diff)
	return diff
}

// MarshalJSON encodes the set as a sorted array so output is stable.
func (s URLSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of URLs.
func (s *URLSet) UnmarshalJSON(data []byte) error {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return err
	}
	*s = NewURLSet(urls...)
	return nil
}

// CrawlResult is produced by every crawl invocation, including each
// recursive sub-crawl. A parent's DiscoveredURLs is the union of its own
// discovered links and those of all its children.
//
// An empty RootDomain means the invocation had nothing new to contribute
// because its URL was already claimed within the revisit window.
//
// Callers must not assume every URL in DiscoveredURLs was itself fetched:
// a URL observed by one branch may have been claimed and explored by another.
type CrawlResult struct {
	// RootDomain is the authority (host[:port]) the crawl was scoped to.
	RootDomain string `json:"root_domain"`

	// DiscoveredURLs holds every in-scope URL found during the crawl.
	DiscoveredURLs URLSet `json:"discovered_urls"`
}

// NewCrawlResult creates an empty result scoped to rootDomain.
func NewCrawlResult(rootDomain string) *CrawlResult {
	return &CrawlResult{
		RootDomain:     rootDomain,
		DiscoveredURLs: make(URLSet),
	}
}

// Merge folds a child result into r. Nil children are ignored.
func (r *CrawlResult) Merge(child *CrawlResult) {
	if child == nil {
		return
	}
	if r.DiscoveredURLs == nil {
		r.DiscoveredURLs = make(URLSet)
	}
	r.DiscoveredURLs.Union(child.DiscoveredURLs)
}

// IsEmpty reports whether the result carries neither a domain nor URLs.
func (r *CrawlResult) IsEmpty() bool {
	return r == nil || (r.RootDomain == "" && r.DiscoveredURLs.Len() == 0)
}

// URLs returns the discovered URLs in lexical order.
func (r *CrawlResult) URLs() []string {
	if r == nil {
		return []string{}
	}
	return r.DiscoveredURLs.Sorted()
}
