// Package main provides the entry point for the medcrawl CLI.
//
// medcrawl crawls hospital and clinic websites, records every page it
// visits in a shared ledger so overlapping crawls never fetch a page twice
// within the revisit window, and hands fetched pages to the content
// extraction service.
//
// Usage:
//
//	medcrawl crawl <seed-url>...
//	medcrawl history [domain]
//	medcrawl ledger --ledger sqlite
//
// See --help for all available options.
package main

// main is the entry point for medcrawl.
func main() {
	Execute()
}
