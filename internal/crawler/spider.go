package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/medscrape/medcrawl/internal/fetcher"
	"github.com/medscrape/medcrawl/internal/handoff"
	"github.com/medscrape/medcrawl/internal/ledger"
	"github.com/medscrape/medcrawl/internal/model"
	"github.com/medscrape/medcrawl/internal/urlfilter"
)

// Defaults used by NewSpider.
const (
	DefaultConcurrencyLimit = 10
	DefaultRevisitInterval  = 12 * time.Hour
	DefaultPacingDelay      = 50 * time.Millisecond
)

// Spider crawls every page reachable from a seed URL on the seed's host.
//
// Each page is claimed in the ledger, fetched, parsed, handed off, and its
// unvisited links are crawled concurrently. Every Crawl call creates one
// semaphore shared by its whole crawl tree, so ConcurrencyLimit bounds the
// number of in-flight fetches of that crawl, not of each level.
//
// Design decision: A Spider holds configuration only. All per-crawl state
// lives in crawlState, so one Spider may run several overlapping crawls
// against the same ledger.
type Spider struct {
	// fetcher retrieves pages.
	fetcher fetcher.Fetcher

	// ledger is the shared visited-URL store.
	ledger ledger.Ledger

	// handoff receives every successfully fetched page.
	handoff handoff.Handoff

	// concurrencyLimit bounds simultaneous fetches across one crawl tree.
	concurrencyLimit int64

	// revisitInterval is how long a claimed URL stays suppressed.
	// Zero or negative means never revisit.
	revisitInterval time.Duration

	// pacingDelay is waited after parsing a page, before its children start.
	pacingDelay time.Duration

	// excludePatterns are case-insensitive regular expressions matched
	// against raw hrefs.
	excludePatterns []string

	// rateLimit caps fetches per second for one crawl. Zero means no limit.
	rateLimit float64

	// maxPages caps how many URLs one crawl may claim. Zero means no limit.
	maxPages int64

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithConcurrencyLimit sets the maximum number of simultaneous fetches.
func WithConcurrencyLimit(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.concurrencyLimit = int64(n)
		}
	}
}

// WithRevisitInterval sets the revisit window. Zero means never revisit.
func WithRevisitInterval(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.revisitInterval = d
	}
}

// WithPacingDelay sets the delay between parsing a page and crawling its links.
func WithPacingDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.pacingDelay = d
	}
}

// WithExcludePatterns replaces the exclusion patterns.
func WithExcludePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.excludePatterns = patterns
	}
}

// WithRateLimit caps fetches per second within one crawl.
func WithRateLimit(rps float64) SpiderOption {
	return func(s *Spider) {
		s.rateLimit = rps
	}
}

// WithMaxPages caps the number of URLs one crawl may claim.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = int64(n)
	}
}

// WithHandoff sets the content extraction hand-off.
func WithHandoff(h handoff.Handoff) SpiderOption {
	return func(s *Spider) {
		if h != nil {
			s.handoff = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches with f and deduplicates with l.
//
// Design decision: Fetcher and ledger are required arguments rather than
// options because a crawl without either is meaningless, and tests swap
// both for instrumented fakes.
func NewSpider(f fetcher.Fetcher, l ledger.Ledger, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:          f,
		ledger:           l,
		handoff:          handoff.Nop{},
		concurrencyLimit: DefaultConcurrencyLimit,
		revisitInterval:  DefaultRevisitInterval,
		pacingDelay:      DefaultPacingDelay,
		excludePatterns:  urlfilter.DefaultExcludePatterns,
		logger:           slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// crawlState is shared by every recursive call of one top-level crawl.
type crawlState struct {
	filter  *urlfilter.Filter
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	reserved        atomic.Int64
	claimed         atomic.Int64
	suppressed      atomic.Int64
	fetched         atomic.Int64
	fetchFailures   atomic.Int64
	handoffFailures atomic.Int64
}

func (st *crawlState) stats() model.CrawlStats {
	return model.CrawlStats{
		Claimed:         st.claimed.Load(),
		Suppressed:      st.suppressed.Load(),
		Fetched:         st.fetched.Load(),
		FetchFailures:   st.fetchFailures.Load(),
		HandoffFailures: st.handoffFailures.Load(),
	}
}

// Crawl crawls seed and everything reachable from it on the same host.
//
// Fetch and parse failures only shrink the result. The returned error is
// non-nil when the ledger failed (wrapping ledger.ErrUnavailable) or ctx
// ended; the partial result gathered so far is returned alongside it.
func (s *Spider) Crawl(ctx context.Context, seed string) (*model.CrawlResult, error) {
	result, _, err := s.CrawlWithStats(ctx, seed)
	return result, err
}

// CrawlWithStats is Crawl that also reports counters.
func (s *Spider) CrawlWithStats(ctx context.Context, seed string) (*model.CrawlResult, model.CrawlStats, error) {
	start, err := urlfilter.NormalizeSeed(seed)
	if err != nil {
		return nil, model.CrawlStats{}, fmt.Errorf("invalid seed URL: %w", err)
	}

	filter, err := urlfilter.New(start.Host, s.excludePatterns)
	if err != nil {
		return nil, model.CrawlStats{}, err
	}

	st := &crawlState{
		filter: filter,
		sem:    semaphore.NewWeighted(s.concurrencyLimit),
	}
	if s.rateLimit > 0 {
		burst := max(1, int(s.rateLimit))
		st.limiter = rate.NewLimiter(rate.Limit(s.rateLimit), burst)
	}

	began := time.Now()
	result, err := s.crawl(ctx, st, start.String())
	stats := st.stats()

	s.logger.Info("crawl completed",
		"seed", start.String(),
		"domain", filter.Authority(),
		"discovered", result.DiscoveredURLs.Len(),
		"claimed", stats.Claimed,
		"suppressed", stats.Suppressed,
		"fetched", stats.Fetched,
		"fetch_failures", stats.FetchFailures,
		"handoff_failures", stats.HandoffFailures,
		"duration", time.Since(began),
		"error", err)

	return result, stats, err
}

// crawl processes one URL and recursively its unvisited links.
// It never returns a nil result.
func (s *Spider) crawl(ctx context.Context, st *crawlState, pageURL string) (*model.CrawlResult, error) {
	// The page budget is reserved before claiming so that a URL refused
	// for budget reasons is never recorded as visited.
	if s.maxPages > 0 {
		if st.reserved.Add(1) > s.maxPages {
			st.reserved.Add(-1)
			return &model.CrawlResult{}, nil
		}
	}

	outcome, err := s.ledger.Claim(ctx, pageURL, s.revisitInterval)
	if err != nil {
		return &model.CrawlResult{}, s.ledgerError(ctx, err)
	}
	if outcome == ledger.Suppressed {
		if s.maxPages > 0 {
			st.reserved.Add(-1)
		}
		st.suppressed.Add(1)
		s.logger.Debug("claim suppressed", "url", pageURL)
		return &model.CrawlResult{}, nil
	}
	st.claimed.Add(1)

	result := model.NewCrawlResult(st.filter.Authority())

	if st.limiter != nil {
		if err := st.limiter.Wait(ctx); err != nil {
			return result, cancelled(ctx)
		}
	}

	if err := st.sem.Acquire(ctx, 1); err != nil {
		return result, err
	}

	s.logger.Info("visiting", "url", pageURL)
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		st.sem.Release(1)
		st.fetchFailures.Add(1)
		s.logger.Warn("fetch failed", "url", pageURL, "error", err)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, nil
	}

	links := s.extractLinks(page, st.filter)
	st.sem.Release(1)
	st.fetched.Add(1)

	if err := s.handoff.Submit(ctx, model.NewExtractionJob(page)); err != nil {
		st.handoffFailures.Add(1)
		s.logger.Warn("hand-off failed", "url", pageURL, "error", err)
	}

	children := make([]string, 0, len(links))
	for _, link := range links {
		visited, err := s.ledger.Visited(ctx, link, s.revisitInterval)
		if err != nil {
			return result, s.ledgerError(ctx, err)
		}
		if visited {
			continue
		}
		result.DiscoveredURLs.Add(link)
		children = append(children, link)
	}

	if len(children) == 0 {
		return result, nil
	}

	if s.pacingDelay > 0 {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(s.pacingDelay):
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*model.CrawlResult, len(children))
	for i, link := range children {
		g.Go(func() error {
			r, err := s.crawl(gctx, st, link)
			results[i] = r
			return err
		})
	}
	err = g.Wait()

	for _, r := range results {
		result.Merge(r)
	}
	return result, err
}

// extractLinks parses HTML pages. Parse failures yield no links.
func (s *Spider) extractLinks(page *model.Page, filter *urlfilter.Filter) []string {
	if !page.IsHTML() {
		return nil
	}

	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	parser, err := NewParser(base, filter)
	if err != nil {
		s.logger.Debug("cannot parse page", "url", page.URL, "error", err)
		return nil
	}
	parsed, err := parser.Parse(bytes.NewReader(page.Body))
	if err != nil {
		s.logger.Debug("cannot parse page", "url", page.URL, "error", err)
		return nil
	}
	page.Title = parsed.Title
	return parsed.Links
}

// ledgerError turns a ledger failure into the error returned by Crawl.
func (s *Spider) ledgerError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ledger.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
}

// cancelled returns the context error, treating a limiter refusal caused
// by an approaching deadline as a deadline.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.DeadlineExceeded
}
