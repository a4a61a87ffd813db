package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
)

// JSONWriter outputs runs in JSON format.
//
// Design decision: We use standard encoding/json because model.URLSet
// already encodes itself as a sorted array and no other output needs
// custom handling.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// full includes run metadata and stats, not just the crawl result.
	full bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// WithRunMetadata wraps the result with run ID, timing and stats.
func WithRunMetadata() JSONWriterOption {
	return func(w *JSONWriter) {
		w.full = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONRun is the JSON shape written with WithRunMetadata.
type JSONRun struct {
	ID         string           `json:"id"`
	SeedURL    string           `json:"seed_url"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stats      model.CrawlStats `json:"stats"`
	Error      string           `json:"error,omitempty"`
	TimedOut   bool             `json:"timed_out,omitempty"`
	*model.CrawlResult
}

// Write outputs the run. By default only root_domain and discovered_urls
// are written, which is all downstream consumers read.
func (w *JSONWriter) Write(run *model.CrawlRun) (int, error) {
	result := run.Result
	if result == nil {
		result = &model.CrawlResult{DiscoveredURLs: model.NewURLSet()}
	}
	if result.DiscoveredURLs == nil {
		result = &model.CrawlResult{RootDomain: result.RootDomain, DiscoveredURLs: model.NewURLSet()}
	}

	var v any = result
	if w.full {
		v = &JSONRun{
			ID:          run.ID,
			SeedURL:     run.SeedURL,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Stats:       run.Stats,
			Error:       errorText(run),
			TimedOut:    run.TimedOut,
			CrawlResult: result,
		}
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output.
	data = append(data, '\n')

	return w.output.Write(data)
}
