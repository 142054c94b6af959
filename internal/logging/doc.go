// Package logging configures structured logging for a crawl run.
//
// A run logs to two destinations at once: human-readable leveled output on
// stderr (Info by default, Debug with --verbose) and a full Debug trace in
// the run directory's log file, so every fetch and every skipped record is
// reconstructible after the fact without drowning the terminal.
package logging
