package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it pipes cleanly to files and other tools.
type SimpleWriter struct {
	baseWriter

	// verbose adds the crawl counters.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run in human-readable format.
func (w *SimpleWriter) Write(run *model.CrawlRun) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("MEDCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Seed:        %s\n", run.SeedURL)
	fmt.Fprintf(&sb, "Domain:      %s\n", orDash(run.RootDomain()))
	fmt.Fprintf(&sb, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Duration:    %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "Status:      %s\n", statusText(run))
	fmt.Fprintf(&sb, "Discovered:  %d\n", run.DiscoveredCount())

	if w.verbose {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Claimed:           %d\n", run.Stats.Claimed)
		fmt.Fprintf(&sb, "Suppressed:        %d\n", run.Stats.Suppressed)
		fmt.Fprintf(&sb, "Fetched:           %d\n", run.Stats.Fetched)
		fmt.Fprintf(&sb, "Fetch failures:    %d\n", run.Stats.FetchFailures)
		fmt.Fprintf(&sb, "Hand-off failures: %d\n", run.Stats.HandoffFailures)
	}

	urls := discovered(run)
	if len(urls) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		sb.WriteString("DISCOVERED URLS\n")
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		for _, u := range urls {
			sb.WriteString("  " + u + "\n")
		}
	}

	return io.WriteString(w.output, sb.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
