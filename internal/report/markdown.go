package report

import (
	"io"
	"strconv"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs runs in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.CrawlRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeStats(md, run)
	w.writeURLs(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.CrawlRun) {
	md.H1("Medcrawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + run.SeedURL + "`"},
			{"Domain", "`" + orDash(run.RootDomain()) + "`"},
			{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", run.Duration().Round(time.Millisecond).String()},
			{"Status", statusText(run)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, run)
}

// writeAlert writes an alert describing how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.CrawlRun) {
	switch {
	case run.TimedOut:
		md.Warningf("The crawl hit its deadline. %d URL(s) were discovered before it stopped.", run.DiscoveredCount())
	case run.Failed():
		md.Cautionf("The crawl failed: %s", errorText(run))
	case run.Stats.FetchFailures > 0:
		md.Importantf("%d page(s) could not be fetched.", run.Stats.FetchFailures)
	case run.DiscoveredCount() == 0:
		md.Note("Nothing was crawled. The seed was visited within the revisit window.")
	default:
		md.Tip("Crawl completed without fetch failures.")
	}
	md.PlainText("")
}

// writeStats writes the crawl counters and a chart of page outcomes.
func (w *MarkdownWriter) writeStats(md *markdown.Markdown, run *model.CrawlRun) {
	s := run.Stats

	md.H2("Crawl Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Discovered URLs", strconv.Itoa(run.DiscoveredCount())},
			{"Claimed", strconv.FormatInt(s.Claimed, 10)},
			{"Suppressed", strconv.FormatInt(s.Suppressed, 10)},
			{"Fetched", strconv.FormatInt(s.Fetched, 10)},
			{"Fetch failures", strconv.FormatInt(s.FetchFailures, 10)},
			{"Hand-off failures", strconv.FormatInt(s.HandoffFailures, 10)},
		},
	})
	md.PlainText("")

	if s.Fetched+s.FetchFailures+s.Suppressed > 0 {
		w.writePieChart(md, s)
	}
}

// writePieChart writes a mermaid pie chart of page outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.CrawlStats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)

	if s.Fetched > 0 {
		chart.LabelAndIntValue("Fetched", uint64(s.Fetched))
	}
	if s.FetchFailures > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.FetchFailures))
	}
	if s.Suppressed > 0 {
		chart.LabelAndIntValue("Suppressed", uint64(s.Suppressed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeURLs writes the discovered URL list.
func (w *MarkdownWriter) writeURLs(md *markdown.Markdown, run *model.CrawlRun) {
	md.H2("Discovered URLs")
	md.PlainText("")

	urls := discovered(run)
	if len(urls) == 0 {
		md.PlainText("No URLs discovered.")
		md.PlainText("")
		return
	}

	md.BulletList(urls...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by medcrawl*")
}
