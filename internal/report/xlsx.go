package report

import (
	"fmt"
	"io"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
	"github.com/xuri/excelize/v2"
)

// Sheet names used by XLSXWriter.
const (
	XLSXURLSheet     = "URLs"
	XLSXSummarySheet = "Summary"
)

// XLSXWriter outputs runs as an Excel workbook.
// The URL sheet holds one discovered URL per row; the summary sheet holds
// the run metadata and counters.
type XLSXWriter struct {
	baseWriter
}

// NewXLSXWriter creates an XLSXWriter that outputs to the given writer.
func NewXLSXWriter(output io.Writer) *XLSXWriter {
	return &XLSXWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run as an XLSX workbook.
func (w *XLSXWriter) Write(run *model.CrawlRun) (n int, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", XLSXURLSheet); err != nil {
		return 0, fmt.Errorf("failed to name URL sheet: %w", err)
	}
	if err := w.writeURLSheet(f, run); err != nil {
		return 0, err
	}

	if _, err := f.NewSheet(XLSXSummarySheet); err != nil {
		return 0, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := w.writeSummarySheet(f, run); err != nil {
		return 0, err
	}

	written, err := f.WriteTo(w.output)
	return int(written), err
}

func (w *XLSXWriter) writeURLSheet(f *excelize.File, run *model.CrawlRun) error {
	if err := f.SetSheetRow(XLSXURLSheet, "A1", &[]any{"URL", "Domain"}); err != nil {
		return fmt.Errorf("failed to write URL header: %w", err)
	}

	domain := run.RootDomain()
	for i, u := range discovered(run) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(XLSXURLSheet, cell, &[]any{u, domain}); err != nil {
			return fmt.Errorf("failed to write URL row: %w", err)
		}
	}

	return f.SetColWidth(XLSXURLSheet, "A", "A", 80)
}

func (w *XLSXWriter) writeSummarySheet(f *excelize.File, run *model.CrawlRun) error {
	rows := [][]any{
		{"Property", "Value"},
		{"Run ID", run.ID},
		{"Seed", run.SeedURL},
		{"Domain", run.RootDomain()},
		{"Started", run.StartedAt.Format(time.RFC3339)},
		{"Finished", run.FinishedAt.Format(time.RFC3339)},
		{"Status", statusText(run)},
		{"Discovered URLs", run.DiscoveredCount()},
		{"Claimed", run.Stats.Claimed},
		{"Suppressed", run.Stats.Suppressed},
		{"Fetched", run.Stats.Fetched},
		{"Fetch failures", run.Stats.FetchFailures},
		{"Hand-off failures", run.Stats.HandoffFailures},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(XLSXSummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	return f.SetColWidth(XLSXSummarySheet, "A", "B", 30)
}
