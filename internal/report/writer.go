package report

import (
	"io"

	"github.com/medscrape/medcrawl/internal/model"
)

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the run to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.CrawlRun) (int, error)
}

// MultiWriter writes to multiple Writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(run *model.CrawlRun) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText summarizes how a run ended.
func statusText(run *model.CrawlRun) string {
	switch {
	case run.TimedOut:
		return "timed out (partial results)"
	case run.Failed():
		return "error: " + errorText(run)
	case run.Result != nil && run.Result.IsEmpty():
		return "skipped (seed visited within revisit window)"
	default:
		return "complete"
	}
}

func errorText(run *model.CrawlRun) string {
	if run.ErrorMessage != "" {
		return run.ErrorMessage
	}
	if run.Error != nil {
		return run.Error.Error()
	}
	return ""
}

// discovered returns the sorted URLs of a run.
func discovered(run *model.CrawlRun) []string {
	if run.Result == nil {
		return nil
	}
	return run.Result.URLs()
}
