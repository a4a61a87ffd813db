// Package crawler discovers every page reachable from a seed URL on the
// seed's host.
//
// # Architecture
//
// The Spider recursively fans out: each page is claimed in the shared
// ledger, fetched under a crawl-wide concurrency ceiling, parsed for
// links, handed off for content extraction, and its unvisited links are
// crawled concurrently. Results of child crawls are merged into the
// parent's result on the way back up.
//
// # Components
//
//   - Spider: the traversal scheduler
//   - Parser: extracts the title and in-scope links of an HTML page
//
// # Failure handling
//
//   - A failed fetch shrinks the result for that branch only
//   - A failed ledger aborts the whole crawl with ledger.ErrUnavailable
//   - Cancelling the context cancels in-flight fetches and returns the
//     partial result with the context error
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher.NewHTTPFetcher(nil), ledger.NewMemory(),
//		crawler.WithConcurrencyLimit(5))
//	result, err := spider.Crawl(ctx, "https://a.edu/")
package crawler
