package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medscrape/medcrawl/internal/model"
)

// RunMetadata contains summary information about a crawl run.
// This is used for listing history without loading discovered URLs.
type RunMetadata struct {
	ID              string
	SeedURL         string
	RootDomain      string
	StartedAt       time.Time
	FinishedAt      time.Time
	DiscoveredCount int
	PagesFetched    int64
	FetchFailures   int64
	Error           string
}

// SaveCrawlRun stores a run. Saving the same ID again replaces it.
func (cdb *CrawlDB) SaveCrawlRun(ctx context.Context, run *model.CrawlRun) error {
	if run == nil {
		return errors.New("crawl run is nil")
	}

	result := run.Result
	if result == nil {
		result = &model.CrawlResult{}
	}
	discoveredJSON, err := json.Marshal(result.DiscoveredURLs)
	if err != nil {
		return fmt.Errorf("failed to serialize discovered URLs: %w", err)
	}

	errMsg := run.ErrorMessage
	if errMsg == "" && run.Error != nil {
		errMsg = run.Error.Error()
	}

	query := `
	INSERT INTO crawl_runs (id, seed_url, root_domain, started_at, finished_at,
		discovered_json, discovered_count, pages_fetched, fetch_failures, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		root_domain = excluded.root_domain,
		finished_at = excluded.finished_at,
		discovered_json = excluded.discovered_json,
		discovered_count = excluded.discovered_count,
		pages_fetched = excluded.pages_fetched,
		fetch_failures = excluded.fetch_failures,
		error = excluded.error
	`

	_, err = cdb.db.ExecContext(ctx, query,
		run.ID,
		run.SeedURL,
		result.RootDomain,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		string(discoveredJSON),
		result.DiscoveredURLs.Len(),
		run.Stats.Fetched,
		run.Stats.FetchFailures,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}
	return nil
}

// GetCrawlRun retrieves a run by ID. It returns nil when the run is unknown.
func (cdb *CrawlDB) GetCrawlRun(ctx context.Context, id string) (*model.CrawlRun, error) {
	query := `
	SELECT id, seed_url, root_domain, started_at, finished_at, discovered_json,
		pages_fetched, fetch_failures, error
	FROM crawl_runs
	WHERE id = ?
	`

	var (
		run            model.CrawlRun
		rootDomain     string
		startedAt      string
		finishedAt     sql.NullString
		discoveredJSON string
		errMsg         sql.NullString
	)
	err := cdb.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.SeedURL,
		&rootDomain,
		&startedAt,
		&finishedAt,
		&discoveredJSON,
		&run.Stats.Fetched,
		&run.Stats.FetchFailures,
		&errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt.String)
	run.ErrorMessage = errMsg.String

	discovered := model.NewURLSet()
	if err := json.Unmarshal([]byte(discoveredJSON), &discovered); err != nil {
		return nil, fmt.Errorf("failed to parse discovered URLs: %w", err)
	}
	run.Result = &model.CrawlResult{
		RootDomain:     rootDomain,
		DiscoveredURLs: discovered,
	}
	return &run, nil
}

// ListCrawlRuns returns run metadata, newest first.
// An empty domain lists every run.
func (cdb *CrawlDB) ListCrawlRuns(ctx context.Context, domain string) ([]RunMetadata, error) {
	query := `
	SELECT id, seed_url, root_domain, started_at, finished_at,
		discovered_count, pages_fetched, fetch_failures, error
	FROM crawl_runs
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if domain != "" {
		query += " AND root_domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY started_at DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta       RunMetadata
			startedAt  string
			finishedAt sql.NullString
			errMsg     sql.NullString
		)
		if err := rows.Scan(
			&meta.ID,
			&meta.SeedURL,
			&meta.RootDomain,
			&startedAt,
			&finishedAt,
			&meta.DiscoveredCount,
			&meta.PagesFetched,
			&meta.FetchFailures,
			&errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		meta.FinishedAt = parseTimestamp(finishedAt.String)
		meta.Error = errMsg.String
		results = append(results, meta)
	}
	return results, rows.Err()
}

// ListDomains returns every crawled root domain.
func (cdb *CrawlDB) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT DISTINCT root_domain FROM crawl_runs
	WHERE root_domain != ''
	ORDER BY root_domain
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}
