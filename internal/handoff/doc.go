// Package handoff passes fetched pages to the content extraction service.
//
// The crawler calls Submit once per successfully fetched page and never
// waits for extraction results. A failed submission is logged and counted
// by the crawler; it does not fail the crawl.
//
// KafkaHandoff publishes one JSON-encoded model.ExtractionJob per page,
// keyed by domain so all pages of a site land in the same partition.
// Submit only queues the job; a background publisher writes to the broker,
// so broker latency never slows traversal.
package handoff
