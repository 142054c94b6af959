// Package crawler contains the crawl engine: the Inspector contract each
// federated software implements, the registry mapping software names to
// their variants, the per-software inspectors, and the orchestrator that
// drives a run through its phases (policy check, inspection,
// post-processing, cleaning).
//
// Per-host failure is data, never control flow: every attempted host ends
// as exactly one node record, successful or failed, and only fatal setup
// errors abort a run.
package crawler
