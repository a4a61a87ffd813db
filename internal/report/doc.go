// Package report writes crawl runs in several output formats.
//
// Supported formats:
//   - Simple: human-readable text for the terminal
//   - JSON: root_domain and discovered_urls for tool integration
//   - Markdown: a shareable summary with the discovered URL list
//   - XLSX: a spreadsheet with one row per discovered URL
package report
