package model

import "strconv"

// Base node table columns. Every instance dataset contains at least these
// four; variants extend them with project-specific metrics.
//
// Id and Label duplicate the hostname because downstream graph tools
// (Gephi and friends) expect those exact column names for node files.
const (
	FieldHost  = "host"
	FieldError = "error"
	FieldID    = "Id"
	FieldLabel = "Label"
)

// RequiredNodeFields are the columns every instance dataset must declare.
func RequiredNodeFields() []string {
	return []string{FieldHost, FieldError, FieldID, FieldLabel}
}

// NodeRecord is one row of the node table: a single federation member
// identified by hostname, written exactly once when its inspection
// completes. An empty Error means the inspection succeeded.
//
// Design decision: metrics are a string map rather than per-variant structs
// because each federated software exposes a different column set and the
// sink writes rows positionally from the variant's declared field list.
// Unknown fields simply render as empty cells.
type NodeRecord struct {
	// Host is the node's hostname, globally unique within a run.
	Host string

	// Error is empty on success, otherwise a human-readable description
	// of why the inspection failed.
	Error string

	// metrics holds project-specific columns keyed by field name.
	metrics map[string]string
}

// NewNodeRecord creates a node record for the given host with no metrics
// and no error.
func NewNodeRecord(host string) *NodeRecord {
	return &NodeRecord{
		Host:    host,
		metrics: make(map[string]string),
	}
}

// Fail marks the record as failed with the given error.
// The record is still written to the node table; failure is data, not
// control flow.
func (n *NodeRecord) Fail(err error) {
	if err != nil {
		n.Error = err.Error()
	}
}

// Set stores a project-specific metric value.
func (n *NodeRecord) Set(field, value string) {
	n.metrics[field] = value
}

// SetInt stores an integer metric value.
func (n *NodeRecord) SetInt(field string, value int64) {
	n.metrics[field] = strconv.FormatInt(value, 10)
}

// SetBool stores a boolean metric value.
func (n *NodeRecord) SetBool(field string, value bool) {
	n.metrics[field] = strconv.FormatBool(value)
}

// Get returns the stored metric value for a field, or "" if unset.
func (n *NodeRecord) Get(field string) string {
	return n.metrics[field]
}

// Row renders the record as one CSV row following the given field order.
// The host, error, Id and Label columns are filled from the record itself;
// Id and Label always equal the hostname. Fields the record never set
// render as empty strings.
func (n *NodeRecord) Row(fields []string) []string {
	row := make([]string, len(fields))
	for i, field := range fields {
		switch field {
		case FieldHost:
			row[i] = n.Host
		case FieldError:
			row[i] = n.Error
		case FieldID, FieldLabel:
			row[i] = n.Host
		default:
			row[i] = n.metrics[field]
		}
	}
	return row
}
