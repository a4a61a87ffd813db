// Package pipeline runs crawl runs through a sequence of steps.
//
// A run starts with the crawl itself and continues with bookkeeping such
// as saving the run to history. Each stage is a Step that receives the
// current model.CrawlRun and can modify it.
//
// Design decision: We use a pipeline rather than direct calls because:
// 1. Steps can be added or dropped per command (e.g. no history for dry runs)
// 2. Error handling and logging stay consistent across steps
// 3. Cancellation is checked between steps
//
// BatchProcessor crawls several seeds concurrently with errgroup, each
// through its own pipeline, against one shared ledger.
package pipeline
