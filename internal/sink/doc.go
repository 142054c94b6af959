// Package sink provides append-only, concurrency-safe CSV writers for the
// datasets a crawl run produces. Each dataset gets one file with a header
// row, one exclusive lock, and no ordering guarantee between rows written
// by different hosts' tasks.
package sink
