// Package registry loads the company registry and attributes scraped
// documents to the company that owns their URL.
//
// The registry is a CSV file with a Company column and a URL column; one
// company may appear on many rows. Lookups use NormalizeURL on both sides.
package registry
