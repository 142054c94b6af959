// Package archive persists completed run summaries and node records into a
// local SQLite database, so successive crawls of the same software can be
// compared without re-parsing old run directories.
package archive
