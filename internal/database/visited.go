package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medscrape/medcrawl/internal/ledger"
)

var _ ledger.Ledger = (*CrawlDB)(nil)

// claimQuery inserts the URL, or refreshes it when the revisit window has
// elapsed. Exactly one row is affected when the claim is Fresh.
// Args: url, now, revisit, revisit (nanoseconds).
const claimQuery = `
INSERT INTO visited_urls (url, last_visited_at)
VALUES (?, ?)
ON CONFLICT(url) DO UPDATE SET
	last_visited_at = excluded.last_visited_at
WHERE ? > 0 AND excluded.last_visited_at - visited_urls.last_visited_at >= ?
`

// Claim implements ledger.Ledger.
func (cdb *CrawlDB) Claim(ctx context.Context, url string, revisit time.Duration) (ledger.Outcome, error) {
	res, err := cdb.db.ExecContext(ctx, claimQuery,
		url,
		cdb.now().UnixNano(),
		int64(revisit),
		int64(revisit),
	)
	if err != nil {
		return ledger.Suppressed, fmt.Errorf("%w: claim %s: %w", ledger.ErrUnavailable, url, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Suppressed, fmt.Errorf("%w: claim %s: %w", ledger.ErrUnavailable, url, err)
	}
	if n == 1 {
		return ledger.Fresh, nil
	}
	return ledger.Suppressed, nil
}

// Visited implements ledger.Ledger.
func (cdb *CrawlDB) Visited(ctx context.Context, url string, revisit time.Duration) (bool, error) {
	last, ok, err := cdb.lastVisit(ctx, url)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return !ledger.Expired(last, cdb.now(), revisit), nil
}

// LastVisit returns when url was last claimed.
func (cdb *CrawlDB) LastVisit(ctx context.Context, url string) (time.Time, bool, error) {
	return cdb.lastVisit(ctx, url)
}

func (cdb *CrawlDB) lastVisit(ctx context.Context, url string) (time.Time, bool, error) {
	var nanos int64
	err := cdb.db.QueryRowContext(ctx,
		`SELECT last_visited_at FROM visited_urls WHERE url = ?`, url,
	).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: lookup %s: %w", ledger.ErrUnavailable, url, err)
	}
	return time.Unix(0, nanos), true, nil
}

// Entries implements ledger.Ledger.
func (cdb *CrawlDB) Entries(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := cdb.db.QueryContext(ctx,
		`SELECT url, last_visited_at FROM visited_urls ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %w", ledger.ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			u     string
			nanos int64
		)
		if err := rows.Scan(&u, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, ledger.Entry{URL: u, LastVisitedAt: time.Unix(0, nanos)})
	}
	return entries, rows.Err()
}
