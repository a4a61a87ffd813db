package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/medscrape/medcrawl/internal/fetcher"
	"github.com/medscrape/medcrawl/internal/handoff"
	"github.com/medscrape/medcrawl/internal/ledger"
	"github.com/medscrape/medcrawl/internal/model"
)

// htmlPage builds a page linking to hrefs.
func htmlPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>page</title></head><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// fakeSite is an instrumented Fetcher serving pages from memory.
type fakeSite struct {
	pages map[string]string
	fail  map[string]bool
	delay time.Duration

	mu   sync.Mutex
	hits map[string]int

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeSite(pages map[string]string) *fakeSite {
	return &fakeSite{
		pages: pages,
		fail:  make(map[string]bool),
		hits:  make(map[string]int),
	}
}

func (f *fakeSite) Fetch(ctx context.Context, u string) (*model.Page, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		seen := f.maxInflight.Load()
		if cur <= seen || f.maxInflight.CompareAndSwap(seen, cur) {
			break
		}
	}

	f.mu.Lock()
	f.hits[u]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &fetcher.FetchError{URL: u, Err: ctx.Err()}
		case <-time.After(f.delay):
		}
	}

	if f.fail[u] {
		return nil, &fetcher.FetchError{URL: u, StatusCode: http.StatusInternalServerError, Err: fetcher.ErrUnexpectedStatus}
	}
	body, ok := f.pages[u]
	if !ok {
		return nil, &fetcher.FetchError{URL: u, StatusCode: http.StatusNotFound, Err: fetcher.ErrUnexpectedStatus}
	}

	page := &model.Page{
		URL:         u,
		FinalURL:    u,
		Domain:      "a.edu",
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()
	return page, nil
}

func (f *fakeSite) hitCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[u]
}

func (f *fakeSite) totalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.hits {
		total += n
	}
	return total
}

// failingLedger wraps a Memory ledger and fails after a number of claims.
type failingLedger struct {
	*ledger.Memory
	claimsLeft    atomic.Int64
	failVisited   bool
	errUnderlying error
}

func (l *failingLedger) Claim(ctx context.Context, u string, revisit time.Duration) (ledger.Outcome, error) {
	if l.claimsLeft.Add(-1) < 0 {
		return ledger.Suppressed, l.errUnderlying
	}
	return l.Memory.Claim(ctx, u, revisit)
}

func (l *failingLedger) Visited(ctx context.Context, u string, revisit time.Duration) (bool, error) {
	if l.failVisited {
		return false, l.errUnderlying
	}
	return l.Memory.Visited(ctx, u, revisit)
}

// scenarioSite is the canonical crawl: / -> /b, /c; /b -> /, /d; /c fails.
func scenarioSite() *fakeSite {
	site := newFakeSite(map[string]string{
		"https://a.edu/":  htmlPage("/b", "/c", "https://b.edu/y", "#top", "mailto:info@a.edu", "report.pdf", "/login"),
		"https://a.edu/b": htmlPage("/", "/d"),
		"https://a.edu/d": htmlPage(),
	})
	site.fail["https://a.edu/c"] = true
	return site
}

// TestSpiderCrawl tests the end-to-end crawl scenario.
func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	site := scenarioSite()
	l := ledger.NewMemory()
	spider := NewSpider(site, l, WithPacingDelay(0))

	result, stats, err := spider.CrawlWithStats(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if result.RootDomain != "a.edu" {
		t.Errorf("expected root domain a.edu, got %q", result.RootDomain)
	}
	for _, u := range []string{"https://a.edu/b", "https://a.edu/c", "https://a.edu/d"} {
		if !result.DiscoveredURLs.Has(u) {
			t.Errorf("expected %s to be discovered, got %v", u, result.URLs())
		}
	}
	for _, u := range result.URLs() {
		if !strings.HasPrefix(u, "https://a.edu/") {
			t.Errorf("out-of-scope URL discovered: %s", u)
		}
		for _, bad := range []string{"#", "mailto:", ".pdf", "/login"} {
			if strings.Contains(u, bad) {
				t.Errorf("excluded URL discovered: %s", u)
			}
		}
	}

	if l.Len() != 4 {
		entries, _ := l.Entries(context.Background())
		t.Errorf("expected 4 ledger entries, got %+v", entries)
	}
	for _, u := range []string{"https://a.edu/", "https://a.edu/b", "https://a.edu/c", "https://a.edu/d"} {
		if n := site.hitCount(u); n != 1 {
			t.Errorf("expected %s fetched once, got %d", u, n)
		}
	}

	want := model.CrawlStats{Claimed: 4, Fetched: 3, FetchFailures: 1}
	if stats.Claimed != want.Claimed || stats.Fetched != want.Fetched || stats.FetchFailures != want.FetchFailures {
		t.Errorf("expected stats %+v, got %+v", want, stats)
	}
}

// TestSpiderPartialResult tests that failed branches do not stop siblings.
func TestSpiderPartialResult(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]string{
		"https://a.edu/":       htmlPage("/broken", "/ok"),
		"https://a.edu/ok":     htmlPage("/deeper"),
		"https://a.edu/deeper": htmlPage(),
	})
	site.fail["https://a.edu/broken"] = true

	result, err := NewSpider(site, ledger.NewMemory(), WithPacingDelay(0)).
		Crawl(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("fetch failures must not fail the crawl: %v", err)
	}
	for _, u := range []string{"https://a.edu/broken", "https://a.edu/ok", "https://a.edu/deeper"} {
		if !result.DiscoveredURLs.Has(u) {
			t.Errorf("expected %s in result, got %v", u, result.URLs())
		}
	}
}

// TestSpiderSeedFailure tests a crawl whose seed cannot be fetched.
func TestSpiderSeedFailure(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]string{})
	result, err := NewSpider(site, ledger.NewMemory()).Crawl(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RootDomain != "a.edu" || result.DiscoveredURLs.Len() != 0 {
		t.Errorf("expected empty result for a.edu, got %+v", result)
	}
}

// TestSpiderConcurrencyCeiling checks that in-flight fetches never exceed
// the limit across the whole crawl tree.
func TestSpiderConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	const limit = 3

	pages := make(map[string]string)
	var rootLinks []string
	for i := range 12 {
		child := fmt.Sprintf("/p%d", i)
		rootLinks = append(rootLinks, child)
		var grandchildren []string
		for j := range 3 {
			gc := fmt.Sprintf("/p%d/c%d", i, j)
			grandchildren = append(grandchildren, gc)
			pages["https://a.edu"+gc] = htmlPage()
		}
		pages["https://a.edu"+child] = htmlPage(grandchildren...)
	}
	pages["https://a.edu/"] = htmlPage(rootLinks...)

	site := newFakeSite(pages)
	site.delay = 10 * time.Millisecond

	spider := NewSpider(site, ledger.NewMemory(),
		WithConcurrencyLimit(limit),
		WithPacingDelay(0))

	result, err := spider.Crawl(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	if got := site.maxInflight.Load(); got > limit {
		t.Errorf("observed %d concurrent fetches, limit is %d", got, limit)
	}
	if result.DiscoveredURLs.Len() != 12+12*3 {
		t.Errorf("expected %d URLs, got %d", 12+12*3, result.DiscoveredURLs.Len())
	}
	if site.totalHits() != len(pages) {
		t.Errorf("expected %d fetches, got %d", len(pages), site.totalHits())
	}
}

// TestSpiderOverlappingCrawls runs two crawls of the same site against
// one ledger and checks no page is fetched twice.
func TestSpiderOverlappingCrawls(t *testing.T) {
	t.Parallel()

	site := scenarioSite()
	site.delay = 5 * time.Millisecond
	spider := NewSpider(site, ledger.NewMemory(), WithPacingDelay(0))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = spider.Crawl(context.Background(), "https://a.edu/")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
	}
	for _, u := range []string{"https://a.edu/", "https://a.edu/b", "https://a.edu/c", "https://a.edu/d"} {
		if n := site.hitCount(u); n != 1 {
			t.Errorf("expected %s fetched once across both crawls, got %d", u, n)
		}
	}
}

// TestSpiderRevisit tests the revisit window across crawls.
func TestSpiderRevisit(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	site := scenarioSite()
	spider := NewSpider(site, ledger.NewMemory(ledger.WithClock(clock)),
		WithRevisitInterval(time.Hour),
		WithPacingDelay(0))
	ctx := context.Background()

	if _, err := spider.Crawl(ctx, "https://a.edu/"); err != nil {
		t.Fatalf("first crawl: %v", err)
	}

	advance(30 * time.Minute)
	result, err := spider.Crawl(ctx, "https://a.edu/")
	if err != nil {
		t.Fatalf("second crawl: %v", err)
	}
	if !result.IsEmpty() {
		t.Errorf("expected empty result inside revisit window, got %+v", result)
	}
	if site.hitCount("https://a.edu/") != 1 {
		t.Errorf("seed must not be refetched inside the window")
	}

	advance(time.Hour)
	result, err = spider.Crawl(ctx, "https://a.edu/")
	if err != nil {
		t.Fatalf("third crawl: %v", err)
	}
	if result.RootDomain != "a.edu" || site.hitCount("https://a.edu/d") != 2 {
		t.Errorf("expected full recrawl after the window, got %+v", result)
	}
}

// TestSpiderLedgerUnavailable tests that ledger failures abort the crawl.
func TestSpiderLedgerUnavailable(t *testing.T) {
	t.Parallel()

	errDown := errors.New("connection refused")

	t.Run("claim failure on seed", func(t *testing.T) {
		t.Parallel()

		l := &failingLedger{Memory: ledger.NewMemory(), errUnderlying: errDown}
		result, err := NewSpider(scenarioSite(), l).Crawl(context.Background(), "https://a.edu/")
		if !errors.Is(err, ledger.ErrUnavailable) || !errors.Is(err, errDown) {
			t.Fatalf("expected ErrUnavailable wrapping cause, got %v", err)
		}
		if result == nil {
			t.Fatal("expected non-nil partial result")
		}
	})

	t.Run("claim failure deeper in the tree", func(t *testing.T) {
		t.Parallel()

		l := &failingLedger{Memory: ledger.NewMemory(), errUnderlying: errDown}
		l.claimsLeft.Store(1)

		result, err := NewSpider(scenarioSite(), l, WithPacingDelay(0)).
			Crawl(context.Background(), "https://a.edu/")
		if !errors.Is(err, ledger.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if !result.DiscoveredURLs.Has("https://a.edu/b") {
			t.Errorf("expected links found before the failure, got %v", result.URLs())
		}
	})

	t.Run("visited pre-check failure", func(t *testing.T) {
		t.Parallel()

		l := &failingLedger{Memory: ledger.NewMemory(), errUnderlying: errDown, failVisited: true}
		l.claimsLeft.Store(100)

		_, err := NewSpider(scenarioSite(), l).Crawl(context.Background(), "https://a.edu/")
		if !errors.Is(err, ledger.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}

// TestSpiderHandoff tests that fetched pages are handed off.
func TestSpiderHandoff(t *testing.T) {
	t.Parallel()

	t.Run("every fetched page is submitted", func(t *testing.T) {
		t.Parallel()

		var (
			mu   sync.Mutex
			jobs []model.ExtractionJob
		)
		h := handoff.Func(func(_ context.Context, job model.ExtractionJob) error {
			mu.Lock()
			defer mu.Unlock()
			jobs = append(jobs, job)
			return nil
		})

		_, err := NewSpider(scenarioSite(), ledger.NewMemory(), WithHandoff(h), WithPacingDelay(0)).
			Crawl(context.Background(), "https://a.edu/")
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(jobs) != 3 {
			t.Fatalf("expected 3 jobs, got %d", len(jobs))
		}
		for _, job := range jobs {
			if job.Domain != "a.edu" || job.Title != "page" || job.ContentHash == "" {
				t.Errorf("unexpected job %+v", job)
			}
		}
	})

	t.Run("failures are counted, not fatal", func(t *testing.T) {
		t.Parallel()

		h := handoff.Func(func(context.Context, model.ExtractionJob) error {
			return errors.New("broker down")
		})

		result, stats, err := NewSpider(scenarioSite(), ledger.NewMemory(), WithHandoff(h), WithPacingDelay(0)).
			CrawlWithStats(context.Background(), "https://a.edu/")
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if stats.HandoffFailures != 3 {
			t.Errorf("expected 3 hand-off failures, got %d", stats.HandoffFailures)
		}
		if result.DiscoveredURLs.Len() != 3 {
			t.Errorf("expected crawl to continue, got %v", result.URLs())
		}
	})

	t.Run("a stalled broker does not hold up the crawl", func(t *testing.T) {
		t.Parallel()

		w := &stalledWriter{release: make(chan struct{})}
		h := handoff.NewKafkaHandoffWithWriter(w)

		start := time.Now()
		result, stats, err := NewSpider(scenarioSite(), ledger.NewMemory(), WithHandoff(h), WithPacingDelay(0)).
			CrawlWithStats(context.Background(), "https://a.edu/")
		elapsed := time.Since(start)

		close(w.release)
		if cerr := h.Close(); cerr != nil {
			t.Fatalf("close failed: %v", cerr)
		}

		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if elapsed > 2*time.Second {
			t.Errorf("crawl waited on the broker for %v", elapsed)
		}
		if result.DiscoveredURLs.Len() != 3 || stats.HandoffFailures != 0 {
			t.Errorf("unexpected result %v, stats %+v", result.URLs(), stats)
		}
		if got := w.count.Load(); got != 3 {
			t.Errorf("expected 3 jobs published after release, got %d", got)
		}
	})
}

// stalledWriter blocks every publish until release is closed.
type stalledWriter struct {
	release chan struct{}
	count   atomic.Int64
}

func (w *stalledWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.count.Add(int64(len(msgs)))
	return nil
}

func (w *stalledWriter) Close() error { return nil }

// TestSpiderMaxPages tests the page budget.
func TestSpiderMaxPages(t *testing.T) {
	t.Parallel()

	pages := map[string]string{}
	for i := range 10 {
		pages[fmt.Sprintf("https://a.edu/p%d", i)] = htmlPage(fmt.Sprintf("/p%d", i+1))
	}
	pages["https://a.edu/"] = htmlPage("/p0")

	site := newFakeSite(pages)
	l := ledger.NewMemory()
	_, stats, err := NewSpider(site, l, WithMaxPages(3), WithPacingDelay(0)).
		CrawlWithStats(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	if stats.Claimed != 3 || l.Len() != 3 {
		t.Errorf("expected 3 claimed URLs, got stats %+v and %d entries", stats, l.Len())
	}
}

// TestSpiderCancellation tests crawl cancellation.
func TestSpiderCancellation(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := NewSpider(scenarioSite(), ledger.NewMemory()).Crawl(ctx, "https://a.edu/")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result == nil {
			t.Error("expected non-nil result")
		}
	})

	t.Run("deadline during crawl", func(t *testing.T) {
		t.Parallel()

		site := scenarioSite()
		site.delay = time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := NewSpider(site, ledger.NewMemory()).Crawl(ctx, "https://a.edu/")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("in-flight fetch was not cancelled")
		}
	})
}

// TestSpiderRateLimit tests the optional rate limiter.
func TestSpiderRateLimit(t *testing.T) {
	t.Parallel()

	site := scenarioSite()
	start := time.Now()
	_, err := NewSpider(site, ledger.NewMemory(), WithRateLimit(20), WithPacingDelay(0)).
		Crawl(context.Background(), "https://a.edu/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	// Burst covers all four fetches at 20 rps.
	if time.Since(start) > 2*time.Second {
		t.Errorf("crawl took too long: %v", time.Since(start))
	}
}

// TestSpiderInvalidInput tests seed and pattern validation.
func TestSpiderInvalidInput(t *testing.T) {
	t.Parallel()

	site := scenarioSite()

	if _, err := NewSpider(site, ledger.NewMemory()).Crawl(context.Background(), "ftp://a.edu/"); err == nil {
		t.Error("expected error for unsupported seed scheme")
	}
	if _, err := NewSpider(site, ledger.NewMemory(), WithExcludePatterns([]string{"("})).
		Crawl(context.Background(), "https://a.edu/"); err == nil {
		t.Error("expected error for invalid exclude pattern")
	}
}

// TestSpiderHTTP crawls a real HTTP server through the HTTP fetcher.
func TestSpiderHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(htmlPage("/about", "/files/data.zip", "/missing"))) //nolint:errcheck
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(htmlPage("/", "/team?sort=asc"))) //nolint:errcheck
	})
	mux.HandleFunc("/team", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"href": "/secret"}`)) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	host := strings.TrimPrefix(server.URL, "http://")
	spider := NewSpider(fetcher.NewHTTPFetcher(server.Client()), ledger.NewMemory(), WithPacingDelay(time.Millisecond))

	result, stats, err := spider.CrawlWithStats(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	if result.RootDomain != host {
		t.Errorf("expected root domain %q, got %q", host, result.RootDomain)
	}

	want := []string{server.URL + "/about", server.URL + "/missing", server.URL + "/team"}
	got := result.URLs()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if stats.FetchFailures != 1 || stats.Fetched != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
