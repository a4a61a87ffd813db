package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
)

// Crawler is implemented by *crawler.Spider.
type Crawler interface {
	CrawlWithStats(ctx context.Context, seed string) (*model.CrawlResult, model.CrawlStats, error)
}

// RunStore is implemented by *database.CrawlDB.
type RunStore interface {
	SaveCrawlRun(ctx context.Context, run *model.CrawlRun) error
}

// CrawlStep crawls the run's seed URL.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step backed by c.
func NewCrawlStep(c Crawler, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		crawler: c,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl and stores result and stats in run.
// A partial result is kept even when the crawl fails.
func (s *CrawlStep) Do(ctx context.Context, run *model.CrawlRun) error {
	result, stats, err := s.crawler.CrawlWithStats(ctx, run.SeedURL)
	run.FinishedAt = time.Now()
	run.Stats = stats
	if result != nil {
		run.Result = result
	}

	if err != nil {
		return err
	}

	s.logger.Debug("crawl step finished",
		"seed", run.SeedURL,
		"domain", run.RootDomain(),
		"discovered", run.DiscoveredCount(),
	)
	return nil
}

// HistoryStep saves the run to a RunStore.
type HistoryStep struct {
	store RunStore
}

// NewHistoryStep creates a history step.
func NewHistoryStep(store RunStore) *HistoryStep {
	return &HistoryStep{store: store}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// RunsAfterCancel implements Finalizer.
func (s *HistoryStep) RunsAfterCancel() bool {
	return true
}

// Do saves run. Runs whose seed was suppressed entirely are saved too, so
// history shows that the crawl happened.
//
// The save uses a fresh context when ctx is already done, so an
// interrupted crawl still leaves a record.
func (s *HistoryStep) Do(ctx context.Context, run *model.CrawlRun) error {
	if s.store == nil {
		return errors.New("history store is nil")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	return s.store.SaveCrawlRun(saveCtx, run)
}
