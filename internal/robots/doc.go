// Package robots implements the politeness gatekeeper: before any data
// fetch, every candidate host's robots.txt is retrieved and interpreted
// against the API paths the crawl will use. A host that disallows a required
// path, declares an impractically high crawl delay, or fails the robots.txt
// fetch in any unexpected way is vetoed outright and never crawled.
//
// Vetting fails closed: only an explicit 200 that permits the paths, or a
// 404 meaning "no policy declared", lets a host through.
package robots
