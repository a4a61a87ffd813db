// Package ledger records which URLs have been crawled and when.
//
// The ledger is the only shared mutable state of a crawl. Claim is the
// single atomic "check and mark" operation: of any number of concurrent
// claims for the same URL inside one revisit window, exactly one returns
// Fresh. Every backend must honor that guarantee:
//
//   - Memory keeps entries in a mutex-guarded map, scoped to one process.
//   - Redis evaluates a Lua script so the read and write happen server side.
//   - The SQLite backend lives in the database package and uses a single
//     conditional upsert.
//
// A revisit interval of zero or less means a visited URL is never claimed
// again.
package ledger
