// Package report renders the human-readable summary of one crawl run.
// The summary lands next to the CSV datasets in the run directory, so a
// result archive is self-describing without the original log file.
package report
