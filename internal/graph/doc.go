// Package graph turns raw per-entity interaction records into host-level
// weighted graphs by composing an entity-to-group interaction matrix with a
// group-to-host ownership matrix. All arithmetic is exact integer math over
// sparse map-backed matrices, so a dense host-by-host or host-by-group
// matrix is never materialized and the output is independent of the order
// in which interactions were observed.
package graph
