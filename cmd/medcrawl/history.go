package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medscrape/medcrawl/internal/config"
	"github.com/medscrape/medcrawl/internal/database"
	"github.com/medscrape/medcrawl/internal/model"
	"github.com/medscrape/medcrawl/internal/report"
)

// NewHistoryCmd creates the history command.
// This command reads crawl runs recorded by 'medcrawl crawl'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show recorded crawl runs",
		Long: `History lists crawl runs stored in the database and compares them.

Examples:
  # List every recorded run, newest first
  medcrawl history

  # List runs of one domain
  medcrawl history www.example-hospital.org

  # Show one run with its discovered URLs
  medcrawl history --show 3f2b...

  # Show URLs added and removed between two runs
  medcrawl history --diff OLD_ID,NEW_ID

  # List every crawled domain
  medcrawl history --list-domains`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("show", "s", "",
		"Show the run with this ID")
	cmd.Flags().StringP("diff", "d", "",
		"Compare two runs given as OLD_ID,NEW_ID")
	cmd.Flags().BoolP("list-domains", "L", false,
		"List all crawled domains")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"Directory of the SQLite database (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	show, err := cmd.Flags().GetString("show")
	if err != nil {
		return err
	}
	diff, err := cmd.Flags().GetString("diff")
	if err != nil {
		return err
	}
	listDomains, err := cmd.Flags().GetBool("list-domains")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// Validate arguments before opening the database.
	var diffIDs []string
	if diff != "" {
		if diffIDs, err = parseDiffIDs(diff); err != nil {
			return err
		}
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	switch {
	case listDomains:
		return listCrawledDomains(ctx, db, out)
	case show != "":
		return showRun(ctx, db, show, jsonOutput, out)
	case diffIDs != nil:
		return diffRuns(ctx, db, diffIDs[0], diffIDs[1], jsonOutput, out)
	default:
		domain := ""
		if len(args) > 0 {
			domain = strings.ToLower(args[0])
		}
		return listRuns(ctx, db, domain, out)
	}
}

// parseDiffIDs splits "OLD_ID,NEW_ID".
func parseDiffIDs(s string) ([]string, error) {
	from, to, ok := strings.Cut(s, ",")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || from == "" || to == "" || strings.Contains(to, ",") {
		return nil, fmt.Errorf("invalid --diff value %q: expected OLD_ID,NEW_ID", s)
	}
	return []string{from, to}, nil
}

// listCrawledDomains lists every domain with recorded runs.
func listCrawledDomains(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	domains, err := db.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	if len(domains) == 0 {
		fmt.Fprintln(out, "No crawled domains found in the database.")
		fmt.Fprintln(out, "\nUse 'medcrawl crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled domains (%d):\n\n", len(domains))
	for _, domain := range domains {
		fmt.Fprintf(out, "  • %s\n", domain)
	}
	fmt.Fprintln(out, "\nUse 'medcrawl history <domain>' to see runs for a domain.")
	return nil
}

// listRuns lists recorded runs, newest first.
func listRuns(ctx context.Context, db *database.CrawlDB, domain string, out io.Writer) error {
	runs, err := db.ListCrawlRuns(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}

	if len(runs) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No crawl history found for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No crawl history found.")
		}
		return nil
	}

	title := "Crawl history"
	if domain != "" {
		title += " for " + domain
	}
	fmt.Fprintf(out, "%s (%d runs):\n\n", title, len(runs))
	fmt.Fprintf(out, "  %-36s  %-20s  %-28s  %6s  %6s  %s\n", "ID", "Started", "Domain", "URLs", "Pages", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 115))

	for _, meta := range runs {
		status := "ok"
		if meta.Error != "" {
			status = "error"
		} else if meta.FetchFailures > 0 {
			status = fmt.Sprintf("%d failed", meta.FetchFailures)
		}
		fmt.Fprintf(out, "  %-36s  %-20s  %-28s  %6d  %6d  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(meta.RootDomain, 28),
			meta.DiscoveredCount,
			meta.PagesFetched,
			status,
		)
	}
	return nil
}

// showRun writes one stored run.
func showRun(ctx context.Context, db *database.CrawlDB, id string, jsonOutput bool, out io.Writer) error {
	run, err := getRun(ctx, db, id)
	if err != nil {
		return err
	}

	var w report.Writer
	if jsonOutput {
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithRunMetadata())
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(run)
	return err
}

// RunDiff lists the URL changes between two runs.
type RunDiff struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// compareRuns returns the URLs present in only one of the two runs.
func compareRuns(from, to *model.CrawlRun) *RunDiff {
	var fromURLs, toURLs model.URLSet
	if from.Result != nil {
		fromURLs = from.Result.DiscoveredURLs
	}
	if to.Result != nil {
		toURLs = to.Result.DiscoveredURLs
	}
	return &RunDiff{
		From:    from.ID,
		To:      to.ID,
		Added:   toURLs.Difference(fromURLs),
		Removed: fromURLs.Difference(toURLs),
	}
}

// diffRuns writes the URLs added and removed between two stored runs.
func diffRuns(ctx context.Context, db *database.CrawlDB, fromID, toID string, jsonOutput bool, out io.Writer) error {
	from, err := getRun(ctx, db, fromID)
	if err != nil {
		return err
	}
	to, err := getRun(ctx, db, toID)
	if err != nil {
		return err
	}

	diff := compareRuns(from, to)

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}

	fmt.Fprintf(out, "Comparing %s (%s)\n     with %s (%s)\n\n",
		from.ID, from.StartedAt.Local().Format(time.DateTime),
		to.ID, to.StartedAt.Local().Format(time.DateTime))

	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		fmt.Fprintln(out, "No changes in discovered URLs.")
		return nil
	}

	fmt.Fprintf(out, "Added (%d):\n", len(diff.Added))
	for _, u := range diff.Added {
		fmt.Fprintf(out, "  + %s\n", u)
	}
	fmt.Fprintf(out, "\nRemoved (%d):\n", len(diff.Removed))
	for _, u := range diff.Removed {
		fmt.Fprintf(out, "  - %s\n", u)
	}
	return nil
}

// errRunNotFound is returned when a run ID is not in the database.
var errRunNotFound = errors.New("crawl run not found")

func getRun(ctx context.Context, db *database.CrawlDB, id string) (*model.CrawlRun, error) {
	run, err := db.GetCrawlRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s (use 'medcrawl history' to list runs)", errRunNotFound, id)
	}
	return run, nil
}

// truncate truncates a string to maxLen characters with ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
