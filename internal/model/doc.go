// Package model defines the record types shared between the crawler
// variants, the result sink, and the graph builder: node records, directed
// weighted relations between nodes, and the raw interaction observations
// that feed the derived graphs.
package model
