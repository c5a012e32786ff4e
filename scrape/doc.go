// Package scrape turns URLs into cleaned text documents.
//
// Each URL is first fetched with a plain HTTP GET. A 200 response is parsed
// directly; any other status falls back to rendering the page in a headless
// browser. A URL that cannot be fetched either way still produces a document,
// whose content is core.SentinelContent, so callers always receive exactly one
// document per URL.
//
// BatchScraper fans fetches out over a bounded worker pool, one batch at a
// time.
package scrape
