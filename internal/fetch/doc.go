// Package fetch provides the HTTP client every crawler variant uses to talk
// to a node's JSON API, together with the process-wide concurrency limiter
// that caps simultaneous network operations.
//
// The client retries transient failures (429 and all 5xx) with an increasing
// backoff ladder, classifies every failure into a small error taxonomy, and
// rejects redirects to non-HTTP(S) schemes. Each attempt holds a limiter
// slot only for the duration of the network call, so a task sleeping between
// retries does not starve other hosts.
package fetch
