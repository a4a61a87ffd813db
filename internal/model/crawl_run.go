package model

import (
	"time"

	"github.com/google/uuid"
)

// CrawlStats counts what happened during one top-level crawl.
type CrawlStats struct {
	// Claimed is the number of URLs this crawl claimed as Fresh.
	Claimed int64 `json:"claimed"`

	// Suppressed is the number of claims refused by the ledger.
	Suppressed int64 `json:"suppressed"`

	// Fetched is the number of pages retrieved successfully.
	Fetched int64 `json:"fetched"`

	// FetchFailures is the number of pages whose fetch failed.
	FetchFailures int64 `json:"fetch_failures"`

	// HandoffFailures is the number of pages the extraction hand-off rejected.
	HandoffFailures int64 `json:"handoff_failures"`
}

// CrawlRun is one orchestrated crawl of a seed URL.
// Pipeline steps fill it in; report writers and the history store read it.
type CrawlRun struct {
	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	// SeedURL is the URL the crawl started from.
	SeedURL string `json:"seed_url"`

	// StartedAt and FinishedAt bracket the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Result is the crawl engine output. Nil until the crawl step ran.
	Result *CrawlResult `json:"result,omitempty"`

	// Stats holds the crawl counters.
	Stats CrawlStats `json:"stats"`

	// Error is the failure that stopped the run, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as text, kept for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// TimedOut is set when the run was cut short by its context.
	TimedOut bool `json:"timed_out,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// NewCrawlRun creates a run for seedURL with a fresh ID.
func NewCrawlRun(seedURL string) *CrawlRun {
	return &CrawlRun{
		ID:             uuid.NewString(),
		SeedURL:        seedURL,
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
	}
}

// RootDomain returns the crawled domain, or "" before the crawl step ran.
func (r *CrawlRun) RootDomain() string {
	if r.Result == nil {
		return ""
	}
	return r.Result.RootDomain
}

// DiscoveredCount returns the number of discovered URLs.
func (r *CrawlRun) DiscoveredCount() int {
	if r.Result == nil {
		return 0
	}
	return r.Result.DiscoveredURLs.Len()
}

// Duration returns how long the run took. Unfinished runs report zero.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run recorded an error.
func (r *CrawlRun) Failed() bool {
	return r.Error != nil || r.ErrorMessage != ""
}
