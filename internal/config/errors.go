package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed specified: provide at least one seed URL")

	// ErrInvalidConcurrencyLimit is returned when the concurrency limit is not positive.
	ErrInvalidConcurrencyLimit = errors.New("invalid concurrency limit: must be positive")

	// ErrInvalidRevisitInterval is returned when the revisit interval is negative.
	// Use 0 to never revisit a URL.
	ErrInvalidRevisitInterval = errors.New("invalid revisit interval: must be non-negative")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDeadline is returned when the crawl deadline is negative.
	// Use 0 for no deadline.
	ErrInvalidDeadline = errors.New("invalid deadline: must be non-negative")

	// ErrInvalidCrawlDelay is returned when the pacing delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidRateLimit is returned when the request rate limit is negative.
	// Use 0 for no rate limit.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxPages is returned when the page budget is negative.
	// Use 0 for no budget.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnknownLedgerBackend is returned when the ledger backend is not
	// one of memory, sqlite or redis.
	ErrUnknownLedgerBackend = errors.New("unknown ledger backend: must be memory, sqlite or redis")

	// ErrMissingRedisURL is returned when the redis ledger is selected
	// without a Redis URL.
	ErrMissingRedisURL = errors.New("redis ledger requires a Redis URL (--redis-url or REDIS_URL)")

	// ErrInvalidExcludePattern is returned when an exclusion pattern is not
	// a valid regular expression.
	ErrInvalidExcludePattern = errors.New("invalid exclude pattern")
)
