package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medscrape/medcrawl/internal/model"
)

// DefaultBatchConcurrency is the number of seeds crawled at once.
const DefaultBatchConcurrency = 4

// BatchProcessor crawls multiple seeds concurrently.
//
// Design decision: Seeds share one ledger, so two seeds on the same site
// never fetch a page twice. Each seed still gets its own concurrency
// ceiling from its own Crawl call.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each seed.
	pipelineFactory func(seed string) *Pipeline

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
// pipelineFactory is called once per seed, so per-site settings can be
// applied to that seed's pipeline.
func NewBatchProcessor(pipelineFactory func(seed string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns the runs in seed order.
//
// A failing seed does not stop the others; its error is recorded in its
// run. The returned error is non-nil only when ctx ended.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlRun, error) {
	runs := make([]*model.CrawlRun, len(seeds))
	err := bp.ProcessBatchWithCallback(ctx, seeds, func(run *model.CrawlRun, index int) {
		runs[index] = run
	})
	return runs, err
}

// ProcessBatchWithCallback crawls every seed and calls callback as each
// run completes. callback runs on the worker goroutine and must be safe
// for concurrent use if it touches shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(run *model.CrawlRun, index int),
) error {
	bp.logger.Info("starting batch",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			run := model.NewCrawlRun(seed)
			if err := gctx.Err(); err != nil {
				run.Error = err
				run.ErrorMessage = err.Error()
				run.TimedOut = true
				callback(run, i)
				return nil
			}

			if err := bp.pipelineFactory(seed).Execute(gctx, run); err != nil {
				bp.logger.Warn("crawl failed",
					"seed", seed,
					"error", err,
				)
			}
			callback(run, i)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	bp.logger.Info("batch complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	return err
}
