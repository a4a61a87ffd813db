package handoff

import (
	"context"

	"github.com/medscrape/medcrawl/internal/model"
)

// Handoff accepts extraction jobs.
// Implementations must be safe for concurrent use.
type Handoff interface {
	Submit(ctx context.Context, job model.ExtractionJob) error
}

// Nop discards every job.
type Nop struct{}

// Submit implements Handoff.
func (Nop) Submit(context.Context, model.ExtractionJob) error {
	return nil
}

// Func adapts a function to the Handoff interface.
type Func func(ctx context.Context, job model.ExtractionJob) error

// Submit implements Handoff.
func (f Func) Submit(ctx context.Context, job model.ExtractionJob) error {
	return f(ctx, job)
}
