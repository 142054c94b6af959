// Package seed queries a directory-of-nodes discovery service for the
// initial host list of a crawl: every known instance of one federated
// software currently reported as up.
package seed
