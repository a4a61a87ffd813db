package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
	"github.com/xuri/excelize/v2"
)

// createTestRun creates a finished run with sample data for testing.
func createTestRun() *model.CrawlRun {
	run := model.NewCrawlRun("https://a.edu/")
	run.StartedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run.FinishedAt = run.StartedAt.Add(1500 * time.Millisecond)
	run.Result = &model.CrawlResult{
		RootDomain:     "a.edu",
		DiscoveredURLs: model.NewURLSet("https://a.edu/b", "https://a.edu/", "https://a.edu/c"),
	}
	run.Stats = model.CrawlStats{Claimed: 3, Suppressed: 1, Fetched: 2, FetchFailures: 1}
	return run
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and urls", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"MEDCRAWL REPORT", "a.edu", "Discovered:  3", "https://a.edu/c", "complete"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Claimed:") {
			t.Error("expected counters to be hidden without verbose")
		}
		if strings.Index(output, "https://a.edu/b") > strings.Index(output, "https://a.edu/c") {
			t.Error("expected URLs in sorted order")
		}
	})

	t.Run("verbose includes counters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Fetch failures:    1") {
			t.Errorf("expected fetch failure counter, got:\n%s", buf.String())
		}
	})

	t.Run("reports timed out and failed runs", func(t *testing.T) {
		t.Parallel()

		timedOut := createTestRun()
		timedOut.TimedOut = true
		failed := createTestRun()
		failed.Error = errors.New("ledger unavailable")

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)
		if _, err := w.Write(timedOut); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(failed); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "timed out") {
			t.Error("expected timed out status")
		}
		if !strings.Contains(buf.String(), "error: ledger unavailable") {
			t.Error("expected error status")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes result only by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := `{"root_domain":"a.edu","discovered_urls":["https://a.edu/","https://a.edu/b","https://a.edu/c"]}` + "\n"
		if buf.String() != want {
			t.Errorf("got %s, want %s", buf.String(), want)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"root_domain\"") {
			t.Errorf("expected indented output, got %s", buf.String())
		}
	})

	t.Run("run metadata", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithRunMetadata()).Write(run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got JSONRun
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.ID != run.ID || got.SeedURL != run.SeedURL {
			t.Errorf("metadata mismatch: %+v", got)
		}
		if got.RootDomain != "a.edu" || got.DiscoveredURLs.Len() != 3 {
			t.Errorf("result mismatch: %+v", got.CrawlResult)
		}
		if got.Stats.Fetched != 2 {
			t.Errorf("Stats.Fetched = %d, want 2", got.Stats.Fetched)
		}
	})

	t.Run("nil result writes empty list", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(model.NewCrawlRun("https://a.edu/")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"discovered_urls":[]`) {
			t.Errorf("expected empty array, got %s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and url list", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestRun())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero byte count")
		}

		output := buf.String()
		for _, want := range []string{"# Medcrawl Report", "## Crawl Statistics", "## Discovered URLs", "- https://a.edu/b", "mermaid"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("empty run", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Result = model.NewCrawlResult("a.edu")
		run.Stats = model.CrawlStats{}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No URLs discovered.") {
			t.Error("expected empty list message")
		}
		if strings.Contains(buf.String(), "mermaid") {
			t.Error("expected no chart without page outcomes")
		}
	})
}

// TestXLSXWriter tests the spreadsheet writer by reading the workbook back.
func TestXLSXWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := NewXLSXWriter(&buf).Write(createTestRun())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != buf.Len() {
		t.Errorf("byte count = %d, buffer holds %d", n, buf.Len())
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(XLSXURLSheet)
	if err != nil {
		t.Fatalf("failed to read URL sheet: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[1][0] != "https://a.edu/" || rows[1][1] != "a.edu" {
		t.Errorf("first row = %v", rows[1])
	}

	summary, err := f.GetRows(XLSXSummarySheet)
	if err != nil {
		t.Fatalf("failed to read summary sheet: %v", err)
	}
	found := false
	for _, row := range summary {
		if len(row) == 2 && row[0] == "Discovered URLs" {
			found = row[1] == "3"
		}
	}
	if !found {
		t.Errorf("summary missing discovered count: %v", summary)
	}
}

// TestMultiWriter tests writing to multiple destinations.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var simple, js bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&simple), NewJSONWriter(&js))

	n, err := mw.Write(createTestRun())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != simple.Len()+js.Len() {
		t.Errorf("total = %d, want %d", n, simple.Len()+js.Len())
	}
	if simple.Len() == 0 || js.Len() == 0 {
		t.Error("expected both writers to receive output")
	}
}
