package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/medscrape/medcrawl/internal/config"
	"github.com/medscrape/medcrawl/internal/database"
	"github.com/medscrape/medcrawl/internal/ledger"
	"github.com/medscrape/medcrawl/internal/urlfilter"
)

// NewLedgerCmd creates the ledger command.
func NewLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the visited-URL ledger",
		Long: `Ledger lists the URLs recorded in a persistent ledger and when each
was last visited.

Examples:
  # List every URL in the SQLite ledger
  medcrawl ledger

  # List the shared Redis ledger
  medcrawl ledger --ledger redis --redis-url redis://cache:6379/0

  # Check whether a crawl would fetch a URL now
  medcrawl ledger --url https://www.example-hospital.org/about -r 24h`,
		Args: cobra.NoArgs,
		RunE: runLedgerCmd,
	}

	cmd.Flags().StringP("ledger", "l", config.LedgerSQLite,
		"Ledger backend: sqlite or redis")
	cmd.Flags().String("redis-url", "",
		"Redis URL for the redis ledger (default: $REDIS_URL)")
	cmd.Flags().String("redis-key", config.DefaultRedisKey,
		"Redis hash holding visit timestamps")
	cmd.Flags().String("db-dir", "",
		"Directory of the SQLite database (default: XDG data directory)")
	cmd.Flags().StringP("url", "u", "",
		"Show the status of a single URL")
	cmd.Flags().DurationP("revisit-interval", "r", config.DefaultRevisitInterval,
		"Revisit interval used to decide whether --url would be fetched (default: $REVISIT_INTERVAL)")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// errMemoryLedger is returned when the ledger command is asked for the
// in-process ledger, which holds nothing once a crawl has exited.
var errMemoryLedger = errors.New("the memory ledger does not persist between runs: use --ledger sqlite or --ledger redis")

// runLedgerCmd executes the ledger command.
func runLedgerCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	flags := cmd.Flags()
	var err error
	if cfg.LedgerBackend, err = flags.GetString("ledger"); err != nil {
		return err
	}
	if flags.Changed("redis-url") {
		if cfg.RedisURL, err = flags.GetString("redis-url"); err != nil {
			return err
		}
	}
	if flags.Changed("revisit-interval") {
		if cfg.RevisitInterval, err = flags.GetDuration("revisit-interval"); err != nil {
			return err
		}
	}
	if cfg.RedisKey, err = flags.GetString("redis-key"); err != nil {
		return err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	rawURL, err := flags.GetString("url")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	switch cfg.LedgerBackend {
	case config.LedgerMemory:
		return errMemoryLedger
	case config.LedgerRedis:
		if cfg.RedisURL == "" {
			return config.ErrMissingRedisURL
		}
	case config.LedgerSQLite:
	default:
		return config.ErrUnknownLedgerBackend
	}
	if cfg.RevisitInterval < 0 {
		return config.ErrInvalidRevisitInterval
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	visited, err := openPersistentLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer visited.Close()

	out := cmd.OutOrStdout()
	if rawURL != "" {
		return showLedgerEntry(ctx, visited, rawURL, cfg.RevisitInterval, time.Now(), jsonOutput, out)
	}
	return listLedgerEntries(ctx, visited, jsonOutput, out)
}

// openPersistentLedger opens the sqlite or redis ledger selected by cfg.
func openPersistentLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	if cfg.LedgerBackend == config.LedgerRedis {
		return openLedger(ctx, cfg, nil)
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ledgerEntryJSON is the JSON form of a ledger entry.
type ledgerEntryJSON struct {
	URL           string    `json:"url"`
	LastVisitedAt time.Time `json:"last_visited_at"`
}

// listLedgerEntries writes every entry, ordered by URL.
func listLedgerEntries(ctx context.Context, l ledger.Ledger, jsonOutput bool, out io.Writer) error {
	entries, err := l.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ledger entries: %w", err)
	}

	if jsonOutput {
		list := make([]ledgerEntryJSON, 0, len(entries))
		for _, e := range entries {
			list = append(list, ledgerEntryJSON{URL: e.URL, LastVisitedAt: e.LastVisitedAt.UTC()})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "The ledger is empty.")
		return nil
	}

	fmt.Fprintf(out, "Visited URLs (%d):\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %s\n", e.LastVisitedAt.Local().Format(time.DateTime), e.URL)
	}
	return nil
}

// ledgerStatus describes whether a crawl started at now would fetch a URL.
type ledgerStatus struct {
	URL           string     `json:"url"`
	Visited       bool       `json:"visited"`
	LastVisitedAt *time.Time `json:"last_visited_at,omitempty"`
	NextVisitAt   *time.Time `json:"next_visit_at,omitempty"`
	WouldFetch    bool       `json:"would_fetch"`
}

// lookupLedgerStatus finds the entry for rawURL and evaluates it against
// the revisit window.
func lookupLedgerStatus(ctx context.Context, l ledger.Ledger, rawURL string, revisit time.Duration, now time.Time) (*ledgerStatus, error) {
	u, err := urlfilter.NormalizeSeed(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	target := u.String()

	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	status := &ledgerStatus{URL: target, WouldFetch: true}
	for _, e := range entries {
		if e.URL != target {
			continue
		}
		last := e.LastVisitedAt
		status.Visited = true
		status.LastVisitedAt = &last
		status.WouldFetch = ledger.Expired(last, now, revisit)
		if revisit > 0 {
			next := last.Add(revisit)
			status.NextVisitAt = &next
		}
		break
	}
	return status, nil
}

// showLedgerEntry writes the status of one URL.
func showLedgerEntry(ctx context.Context, l ledger.Ledger, rawURL string, revisit time.Duration, now time.Time, jsonOutput bool, out io.Writer) error {
	status, err := lookupLedgerStatus(ctx, l, rawURL, revisit, now)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintf(out, "URL:          %s\n", status.URL)
	if !status.Visited {
		fmt.Fprintln(out, "Last visited: never")
		fmt.Fprintln(out, "Status:       would be fetched")
		return nil
	}

	fmt.Fprintf(out, "Last visited: %s\n", status.LastVisitedAt.Local().Format(time.DateTime))
	switch {
	case status.WouldFetch:
		fmt.Fprintln(out, "Status:       would be fetched (revisit interval elapsed)")
	case status.NextVisitAt == nil:
		fmt.Fprintln(out, "Status:       suppressed (never revisited)")
	default:
		fmt.Fprintf(out, "Status:       suppressed until %s\n", status.NextVisitAt.Local().Format(time.DateTime))
	}
	return nil
}
