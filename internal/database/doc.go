// Package database provides SQLite-based storage for medcrawl.
//
// The CrawlDB stores:
//   - The visited-URL ledger, so revisit windows survive restarts
//   - Crawl runs with their discovered URL sets, for history and diffs
//
// CrawlDB implements ledger.Ledger. Claim is a single conditional upsert,
// and the connection pool is limited to one connection, so concurrent
// claims for the same URL are serialized by SQLite itself.
//
// modernc.org/sqlite is CGO-free, which keeps cross-compilation simple.
package database
