package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/medscrape/medcrawl/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
type Step interface {
	// Do executes the pipeline step against run.
	// Non-critical problems should be recorded in run and return nil.
	Do(ctx context.Context, run *model.CrawlRun) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
//
// The crawl CLI sets this so that a run cut short by a ledger failure or
// a deadline is still saved to history.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Finalizer is implemented by steps that must run even after the context
// is done, such as saving the run.
type Finalizer interface {
	RunsAfterCancel() bool
}

func runsAfterCancel(step Step) bool {
	f, ok := step.(Finalizer)
	return ok && f.RunsAfterCancel()
}

// Execute runs all pipeline steps in sequence.
//
// Once ctx is done, only Finalizer steps still run and the context error
// is returned. Otherwise Execute returns the first step error if
// continueOnError is false, or nil with errors recorded in run.
func (p *Pipeline) Execute(ctx context.Context, run *model.CrawlRun) error {
	var cancelErr error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil && !runsAfterCancel(step) {
			if cancelErr == nil {
				p.logger.Warn("pipeline cancelled",
					"step", step.Name(),
					"reason", err,
				)
				run.TimedOut = true
				recordError(run, err)
				cancelErr = err
			}
			continue
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"seed", run.SeedURL,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", run.SeedURL,
				"error", err,
			)

			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				run.TimedOut = true
			}
			recordError(run, err)

			if !p.continueOnError {
				run.PerformedSteps = append(run.PerformedSteps, step.Name())
				return err
			}
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return cancelErr
}

// recordError keeps the first error of a run.
func recordError(run *model.CrawlRun, err error) {
	if run.Error != nil {
		return
	}
	run.Error = err
	run.ErrorMessage = err.Error()
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
