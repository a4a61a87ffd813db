// Package model defines the data structures shared by the crawl engine,
// the orchestration pipeline and the report writers.
//
// This package contains the following main types:
//   - CrawlResult: The root domain and the set of URLs discovered by one crawl
//   - URLSet: A set of normalized URLs with deterministic JSON encoding
//   - Page: A single fetched page as returned by the fetcher
//   - ExtractionJob: The hand-off message for the content extraction service
//   - CrawlRun: One orchestrated crawl of a seed, including timing and errors
//
// Models live in their own package so that crawler, pipeline, database and
// report can all depend on them without import cycles.
package model
