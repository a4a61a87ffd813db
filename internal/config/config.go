package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/medscrape/medcrawl/internal/urlfilter"
)

// Default configuration values.
const (
	// DefaultConcurrencyLimit bounds simultaneous fetches across one crawl tree.
	DefaultConcurrencyLimit = 10

	// DefaultRevisitInterval is how long a visited URL is left alone before
	// a later crawl may fetch it again.
	DefaultRevisitInterval = 12 * time.Hour

	// DefaultTimeout bounds a single page fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultCrawlDelay is the pause after parsing a page, before its links
	// are followed.
	DefaultCrawlDelay = 50 * time.Millisecond

	// DefaultBatchSize is the number of seeds crawled at once.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxRedirects caps redirects followed per fetch.
	DefaultMaxRedirects = 10

	// DefaultUserAgent is a realistic browser User-Agent. Several hospital
	// sites refuse requests from obvious bots.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"

	// DefaultKafkaTopic is the topic the content extraction service reads.
	DefaultKafkaTopic = "content-extraction"

	// DefaultRedisKey is the hash holding visit timestamps.
	DefaultRedisKey = "visited_urls"

	// AppName is the application name used for XDG directory paths.
	AppName = "medcrawl"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

// Config holds all configuration options for medcrawl.
// This struct is populated from defaults, the environment, the config file
// and CLI flags, and passed through the application rather than kept in
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, LedgerConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Seeds is the list of URLs to crawl. Bare hosts get an https:// prefix.
	Seeds []string

	// ConcurrencyLimit is the maximum number of simultaneous fetches across
	// one crawl tree. It is a global ceiling, not a per-level one.
	ConcurrencyLimit int

	// RevisitInterval is how long a claimed URL stays suppressed.
	// Zero means a URL is never revisited once claimed.
	RevisitInterval time.Duration

	// Timeout bounds each individual page fetch.
	Timeout time.Duration

	// Deadline bounds the whole crawl of one invocation. Zero means none.
	// When it passes, in-flight fetches are cancelled and partial results
	// are reported.
	Deadline time.Duration

	// CrawlDelay is waited after parsing a page, before its links are followed.
	CrawlDelay time.Duration

	// RateLimit caps fetches per second for one crawl. Zero means no limit.
	RateLimit float64

	// MaxPages caps how many pages one crawl may claim. Zero means no limit.
	MaxPages int

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use the default (10MB).
	MaxBodySize int64

	// MaxRedirects caps redirects followed per fetch.
	MaxRedirects int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string

	// Cookie is an optional Cookie header value sent with every request.
	Cookie string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// ExcludePatterns are extra case-insensitive regular expressions matched
	// against raw hrefs. They are added to urlfilter.DefaultExcludePatterns.
	ExcludePatterns []string

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// LedgerBackend selects the visited-URL store: memory, sqlite or redis.
	LedgerBackend string

	// RedisURL is the redis:// URL of the shared ledger.
	RedisURL string

	// RedisKey is the hash holding visit timestamps.
	RedisKey string

	// KafkaBroker is the broker address for the extraction hand-off.
	// When empty, fetched pages are not handed off.
	KafkaBroker string

	// KafkaTopic is the topic extraction jobs are written to.
	KafkaTopic string

	// DBDir is the directory path for the SQLite database.
	// Defaults to XDG data directory (~/.local/share/medcrawl on Linux).
	DBDir string

	// SaveToDB records each run in the history database.
	SaveToDB bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .medcrawl in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// XLSXFile is an optional spreadsheet export path.
	XLSXFile string

	// ReportFile is the output file path for the report.
	// When empty, the report is written to stdout.
	ReportFile string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, revisit
// interval). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		ConcurrencyLimit: DefaultConcurrencyLimit,
		RevisitInterval:  DefaultRevisitInterval,
		Timeout:          DefaultTimeout,
		CrawlDelay:       DefaultCrawlDelay,
		MaxBodySize:      DefaultMaxBodySize,
		MaxRedirects:     DefaultMaxRedirects,
		UserAgent:        DefaultUserAgent,
		BatchSize:        DefaultBatchSize,
		LedgerBackend:    LedgerMemory,
		RedisKey:         DefaultRedisKey,
		KafkaTopic:       DefaultKafkaTopic,
	}
}

// XDGDataDir returns the XDG data directory for medcrawl.
// On Linux: ~/.local/share/medcrawl
// On macOS: ~/Library/Application Support/medcrawl
// On Windows: %LOCALAPPDATA%\medcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for medcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// AllExcludePatterns returns the default exclusion patterns followed by
// the configured extra ones.
func (c *Config) AllExcludePatterns() []string {
	patterns := make([]string, 0, len(urlfilter.DefaultExcludePatterns)+len(c.ExcludePatterns))
	patterns = append(patterns, urlfilter.DefaultExcludePatterns...)
	return append(patterns, c.ExcludePatterns...)
}

// ForSite returns a copy of c with the config file settings for host applied.
// Site exclusion patterns are added to the global ones; other site settings
// override the global values when set.
func (c *Config) ForSite(host string) *Config {
	out := *c
	out.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	out.Headers = copyHeaders(c.Headers)
	if c.SiteConfigs == nil {
		return &out
	}

	sc := c.SiteConfigs.GetSiteConfig(host)
	out.ExcludePatterns = append(out.ExcludePatterns, sc.ExcludePatterns...)
	if len(sc.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(sc.Headers))
		}
		for k, v := range sc.Headers {
			out.Headers[k] = v
		}
	}
	if sc.Cookie != "" {
		out.Cookie = sc.Cookie
	}
	if sc.ConcurrencyLimit > 0 {
		out.ConcurrencyLimit = sc.ConcurrencyLimit
	}
	if sc.RevisitInterval != nil {
		out.RevisitInterval = *sc.RevisitInterval
	}
	return &out
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// We return the first error found because fixing one error often makes
// others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}

	if c.ConcurrencyLimit <= 0 {
		return ErrInvalidConcurrencyLimit
	}

	if c.RevisitInterval < 0 {
		return ErrInvalidRevisitInterval
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Deadline < 0 {
		return ErrInvalidDeadline
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	switch c.LedgerBackend {
	case LedgerMemory, LedgerSQLite:
	case LedgerRedis:
		if c.RedisURL == "" {
			return ErrMissingRedisURL
		}
	default:
		return ErrUnknownLedgerBackend
	}

	if _, err := urlfilter.CompilePatterns(c.AllExcludePatterns()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExcludePattern, err)
	}

	return nil
}
