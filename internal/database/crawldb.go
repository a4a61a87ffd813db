package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file created inside the data directory.
const FileName = "medcrawl.db"

// busyTimeout is how long a statement waits for another connection or
// process to release the write lock before failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// CrawlDB provides SQLite-based storage for the visited ledger and crawl
// history.
//
// Design decision: ledger and history share one file. A crawl run and the
// ledger rows it produced can then be inspected together, and there is a
// single file to back up.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// now is the clock used for ledger claims.
	now func() time.Time
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Now overrides the ledger clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file. The busy timeout goes in
	// the DSN so that every new pooled connection is opened with it.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := fmt.Sprintf("%s?mode=%s&_pragma=busy_timeout(%d)", dbPath, mode, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and it makes every
	// Claim statement run in isolation.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}
	if opts.Now != nil {
		cdb.now = opts.Now
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Visited ledger; last_visited_at is unix nanoseconds
	CREATE TABLE IF NOT EXISTS visited_urls (
		url TEXT PRIMARY KEY,
		last_visited_at INTEGER NOT NULL
	);

	-- One row per orchestrated crawl
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		root_domain TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		discovered_json TEXT NOT NULL,
		discovered_count INTEGER NOT NULL DEFAULT 0,
		pages_fetched INTEGER NOT NULL DEFAULT 0,
		fetch_failures INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_domain ON crawl_runs(root_domain);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// storedTimestampFormat is fixed width so stored values sort lexically.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp is the inverse of parseTimestamp for values we write.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimestampFormat)
}
