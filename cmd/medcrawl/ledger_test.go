package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/medscrape/medcrawl/internal/config"
	"github.com/medscrape/medcrawl/internal/database"
	"github.com/medscrape/medcrawl/internal/ledger"
)

// TestNewLedgerCmd tests the ledger command creation.
func TestNewLedgerCmd(t *testing.T) {
	t.Parallel()

	cmd := NewLedgerCmd()
	if cmd.Use != "ledger" {
		t.Errorf("expected use 'ledger', got %q", cmd.Use)
	}

	flag := cmd.Flags().Lookup("ledger")
	if flag == nil {
		t.Fatal("expected ledger flag")
	}
	if flag.DefValue != config.LedgerSQLite {
		t.Errorf("expected default %q, got %q", config.LedgerSQLite, flag.DefValue)
	}
	for _, name := range []string{"redis-url", "redis-key", "db-dir", "url", "revisit-interval", "json"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// visitedLedger returns a memory ledger with one claimed URL.
func visitedLedger(t *testing.T, at time.Time) *ledger.Memory {
	t.Helper()

	l := ledger.NewMemory(ledger.WithClock(func() time.Time { return at }))
	outcome, err := l.Claim(context.Background(), "https://a.edu/about", time.Hour)
	if err != nil || outcome != ledger.Fresh {
		t.Fatalf("claim failed: %v, %v", outcome, err)
	}
	return l
}

// TestLookupLedgerStatus tests revisit window evaluation for one URL.
func TestLookupLedgerStatus(t *testing.T) {
	t.Parallel()

	visitedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := visitedLedger(t, visitedAt)
	ctx := context.Background()

	tests := []struct {
		name       string
		url        string
		revisit    time.Duration
		now        time.Time
		visited    bool
		wouldFetch bool
		hasNext    bool
	}{
		{
			name:       "never visited",
			url:        "https://a.edu/team",
			revisit:    time.Hour,
			now:        visitedAt,
			wouldFetch: true,
		},
		{
			name:    "inside revisit window",
			url:     "https://a.edu/about",
			revisit: time.Hour,
			now:     visitedAt.Add(30 * time.Minute),
			visited: true,
			hasNext: true,
		},
		{
			name:       "revisit window elapsed",
			url:        "https://a.edu/about",
			revisit:    time.Hour,
			now:        visitedAt.Add(2 * time.Hour),
			visited:    true,
			wouldFetch: true,
			hasNext:    true,
		},
		{
			name:    "never revisited",
			url:     "https://a.edu/about",
			revisit: 0,
			now:     visitedAt.Add(365 * 24 * time.Hour),
			visited: true,
		},
		{
			name:    "normalizes the URL",
			url:     "HTTPS://A.EDU/about#contact",
			revisit: time.Hour,
			now:     visitedAt,
			visited: true,
			hasNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, err := lookupLedgerStatus(ctx, l, tt.url, tt.revisit, tt.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Visited != tt.visited {
				t.Errorf("Visited = %v, want %v", status.Visited, tt.visited)
			}
			if status.WouldFetch != tt.wouldFetch {
				t.Errorf("WouldFetch = %v, want %v", status.WouldFetch, tt.wouldFetch)
			}
			if (status.NextVisitAt != nil) != tt.hasNext {
				t.Errorf("NextVisitAt = %v, want set %v", status.NextVisitAt, tt.hasNext)
			}
			if tt.visited && !status.LastVisitedAt.Equal(visitedAt) {
				t.Errorf("LastVisitedAt = %v, want %v", status.LastVisitedAt, visitedAt)
			}
		})
	}

	t.Run("invalid URL", func(t *testing.T) {
		t.Parallel()
		if _, err := lookupLedgerStatus(ctx, l, "ftp://a.edu/", time.Hour, visitedAt); err == nil {
			t.Error("expected error for unsupported scheme")
		}
	})
}

// TestShowLedgerEntry tests the text and JSON status output.
func TestShowLedgerEntry(t *testing.T) {
	t.Parallel()

	visitedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := visitedLedger(t, visitedAt)
	ctx := context.Background()

	tests := []struct {
		name    string
		url     string
		revisit time.Duration
		now     time.Time
		want    string
	}{
		{"unknown URL", "https://a.edu/team", time.Hour, visitedAt, "Last visited: never"},
		{"suppressed", "https://a.edu/about", time.Hour, visitedAt, "suppressed until"},
		{"never revisited", "https://a.edu/about", 0, visitedAt, "suppressed (never revisited)"},
		{"expired", "https://a.edu/about", time.Hour, visitedAt.Add(time.Hour), "would be fetched (revisit interval elapsed)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := showLedgerEntry(ctx, l, tt.url, tt.revisit, tt.now, false, &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, buf.String())
			}
		})
	}

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := showLedgerEntry(ctx, l, "https://a.edu/about", time.Hour, visitedAt, true, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var status ledgerStatus
		if err := json.Unmarshal(buf.Bytes(), &status); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if status.URL != "https://a.edu/about" || !status.Visited || status.WouldFetch {
			t.Errorf("unexpected status: %+v", status)
		}
		if status.NextVisitAt == nil || !status.NextVisitAt.Equal(visitedAt.Add(time.Hour)) {
			t.Errorf("NextVisitAt = %v", status.NextVisitAt)
		}
	})
}

// TestListLedgerEntries tests listing all entries.
func TestListLedgerEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := listLedgerEntries(ctx, ledger.NewMemory(), false, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "The ledger is empty.") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		l := visitedLedger(t, time.Now())
		var buf bytes.Buffer
		if err := listLedgerEntries(ctx, l, false, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Visited URLs (1)") || !strings.Contains(buf.String(), "https://a.edu/about") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		visitedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		l := visitedLedger(t, visitedAt)
		var buf bytes.Buffer
		if err := listLedgerEntries(ctx, l, true, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var entries []ledgerEntryJSON
		if err := json.Unmarshal(buf.Bytes(), &entries); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(entries) != 1 || entries[0].URL != "https://a.edu/about" || !entries[0].LastVisitedAt.Equal(visitedAt) {
			t.Errorf("unexpected entries: %+v", entries)
		}
	})

	t.Run("empty json is an array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := listLedgerEntries(ctx, ledger.NewMemory(), true, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected [], got %s", buf.String())
		}
	})
}

// TestRunLedgerCmd tests the ledger command against a SQLite database.
func TestRunLedgerCmd(t *testing.T) {
	t.Parallel()

	t.Run("memory ledger is rejected", func(t *testing.T) {
		t.Parallel()

		cmd := NewLedgerCmd()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"--ledger", "memory"})
		if err := cmd.Execute(); !errors.Is(err, errMemoryLedger) {
			t.Errorf("expected errMemoryLedger, got %v", err)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()

		cmd := NewLedgerCmd()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"--ledger", "etcd", "--db-dir", t.TempDir()})
		if err := cmd.Execute(); !errors.Is(err, config.ErrUnknownLedgerBackend) {
			t.Errorf("expected ErrUnknownLedgerBackend, got %v", err)
		}
	})

	t.Run("sqlite entries", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := database.Open(dir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.Claim(context.Background(), "https://a.edu/", time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := db.Close(); err != nil {
			t.Fatal(err)
		}

		var out bytes.Buffer
		cmd := NewLedgerCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--db-dir", dir})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "https://a.edu/") {
			t.Errorf("expected entry in output:\n%s", out.String())
		}

		out.Reset()
		cmd = NewLedgerCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--db-dir", dir, "-u", "https://a.edu", "-r", "1h"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "suppressed until") {
			t.Errorf("expected suppressed status:\n%s", out.String())
		}
	})
}
