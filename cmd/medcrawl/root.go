package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/medscrape/medcrawl/internal/log"
)

// NewRootCmd creates the root command for medcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medcrawl",
		Short: "Concurrent same-domain crawler for healthcare websites",
		Long: `medcrawl discovers every page of a website reachable from a seed URL.

Crawls are scoped to the seed's host, run many fetches in parallel under a
single concurrency ceiling, and record visits in a ledger (in memory, SQLite
or Redis) so that overlapping crawls never fetch the same page twice within
the revisit interval. Fetched pages can be handed off to the content
extraction service through Kafka.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewLedgerCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure structured logger selected by the global
// flags. Logs go to the command's stderr so reports on stdout stay clean.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)

	jsonLogs, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		jsonLogs, _ = cmd.Root().PersistentFlags().GetBool("log-json") //nolint:errcheck // false on lookup failure
	}

	if jsonLogs {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}
