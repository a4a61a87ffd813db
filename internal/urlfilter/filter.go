package urlfilter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultExcludePatterns are applied when no patterns are configured.
// They skip in-page anchors, non-navigational schemes, document downloads
// and account pages.
var DefaultExcludePatterns = []string{
	`^#`,
	`^mailto:`,
	`^tel:`,
	`^javascript:`,
	`\.(pdf|docx|xlsx|zip)$`,
	`/login`,
	`/logout`,
	`/register`,
	`/password`,
}

// CompilePatterns compiles patterns as case-insensitive regular expressions.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Filter normalizes links found while crawling a single root authority.
// A Filter is immutable and safe for concurrent use.
type Filter struct {
	authority string
	excludes  []*regexp.Regexp
}

// New creates a Filter scoped to authority (host[:port]).
// Patterns are compiled case-insensitively; nil patterns means no exclusions.
func New(authority string, patterns []string) (*Filter, error) {
	excludes, err := CompilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	return &Filter{
		authority: authority,
		excludes:  excludes,
	}, nil
}

// NewWithDefaults creates a Filter using DefaultExcludePatterns.
func NewWithDefaults(authority string) *Filter {
	f, err := New(authority, DefaultExcludePatterns)
	if err != nil {
		// Default patterns are constant and known to compile.
		panic(err)
	}
	return f
}

// Authority returns the authority the filter is scoped to.
func (f *Filter) Authority() string {
	return f.authority
}

// Excluded reports whether href matches any exclusion pattern.
func (f *Filter) Excluded(href string) bool {
	for _, re := range f.excludes {
		if re.MatchString(href) {
			return true
		}
	}
	return false
}

// Normalize resolves href against base and returns the canonical absolute
// URL when it is a valid target on the filter's authority.
func (f *Filter) Normalize(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", reject(href, ErrEmptyHref)
	}
	if f.Excluded(href) {
		return "", reject(href, ErrExcluded)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", reject(href, ErrInvalidURL)
	}
	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}

	canonical, err := canonicalize(resolved)
	if err != nil {
		return "", reject(href, err)
	}
	if canonical.Host != f.authority {
		return "", reject(href, ErrOutOfScope)
	}
	return canonical.String(), nil
}

// canonicalize strips fragment and query and checks scheme and host.
func canonicalize(u *url.URL) (*url.URL, error) {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.RawQuery = ""
	c.ForceQuery = false
	c.User = nil
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}

	if c.Scheme != "http" && c.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if c.Host == "" || c.Opaque != "" {
		return nil, ErrInvalidURL
	}
	return &c, nil
}

// NormalizeSeed parses a seed URL given on the command line or in config.
// A bare host such as "a.edu" is treated as "https://a.edu/".
func NormalizeSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, reject(raw, ErrEmptyHref)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, reject(raw, ErrInvalidURL)
	}
	c, err := canonicalize(u)
	if err != nil {
		return nil, reject(raw, err)
	}
	return c, nil
}

// Authority returns the host[:port] of rawURL, or "" when it cannot be
// parsed.
func Authority(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
