// Package urlfilter turns raw href values into canonical, in-scope crawl
// targets.
//
// A Filter is built once per crawl from the root authority and a list of
// case-insensitive exclusion patterns. Normalize applies, in order:
//
//   - whitespace trimming and rejection of empty hrefs
//   - exclusion patterns, matched against the raw href
//   - resolution against the page the link was found on
//   - removal of fragment and query string ("/" for an empty path)
//   - http/https scheme check
//   - exact authority match with the crawl root
//
// Rejections are reported as *RejectedError values wrapping one of the
// sentinel reasons, so callers can count them without string matching.
package urlfilter
