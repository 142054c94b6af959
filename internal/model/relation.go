package model

import "strconv"

// Relation table columns. This schema is fixed and never extended:
// every relation dataset a variant declares uses exactly these three.
const (
	FieldSource = "Source"
	FieldTarget = "Target"
	FieldWeight = "Weight"
)

// Relation weights for boolean federation graphs.
const (
	WeightLinked  = 1
	WeightBlocked = -1
)

// RelationFields returns the fixed relation table columns.
func RelationFields() []string {
	return []string{FieldSource, FieldTarget, FieldWeight}
}

// Relation is one directed weighted edge between two nodes.
// Weight is +1 for a federation/follow link, -1 for a block, or an
// aggregate interaction count for the derived graphs.
type Relation struct {
	Source string
	Target string
	Weight int64
}

// Row renders the relation as a CSV row in Source, Target, Weight order.
func (r Relation) Row() []string {
	return []string{r.Source, r.Target, strconv.FormatInt(r.Weight, 10)}
}
