// Package main provides the entry point for the fedigraph CLI.
//
// Fedigraph crawls federated social networks (Lemmy, Mastodon, Misskey,
// Peertube, Pleroma, Bookwyrm) through their public APIs and extracts the
// interaction graphs between their instances.
//
// Usage:
//
//	fedigraph crawl <software>
//	fedigraph crawl all
//
// See --help for all available options.
package main

// main is the entry point for fedigraph.
func main() {
	Execute()
}
