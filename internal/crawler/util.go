package crawler

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/fedigraph/fedigraph/internal/model"
)

// maxPageIterations is the ceiling on pagination loops. Some APIs report an
// item count but keep returning non-empty pages forever because the remote
// data set mutates under the crawl; the ceiling converts that into a
// per-host error instead of an unbounded loop.
const maxPageIterations = 10000

// instanceFields builds an instances dataset header: host first, the
// project metrics in the given order, then error, Id, Label.
func instanceFields(metrics ...string) []string {
	fields := make([]string, 0, len(metrics)+4)
	fields = append(fields, model.FieldHost)
	fields = append(fields, metrics...)
	fields = append(fields, model.FieldError, model.FieldID, model.FieldLabel)
	return fields
}

// writeRelations appends one weighted edge per distinct target to the given
// relation dataset. Targets outside the run's seed set are skipped, and
// duplicates collapse to a single edge, which keeps boolean relation graphs
// idempotent at the source.
func writeRelations(env *Env, dataset, host string, targets []string, weight int64) error {
	seen := make(map[string]bool, len(targets))
	rows := make([][]string, 0, len(targets))
	for _, target := range targets {
		if seen[target] || !env.Seeds[target] {
			continue
		}
		seen[target] = true
		rows = append(rows, model.Relation{Source: host, Target: target, Weight: weight}.Row())
	}
	if len(rows) == 0 {
		return nil
	}
	return env.Sink.WriteAll(dataset, rows)
}

// copyMetrics stores every value of raw whose key appears in the dataset
// fields into the node record. Unrecognized keys are dropped silently:
// each federated software exposes far more than the schema keeps.
func copyMetrics(record *model.NodeRecord, fields []string, raw map[string]any) {
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	for key, value := range raw {
		if allowed[key] {
			record.Set(key, metricString(value))
		}
	}
}

// metricString renders a decoded JSON value as a CSV cell.
func metricString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// encoding/json decodes every number as float64; instance metrics
		// are counts, so render without a fractional part when exact.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// hostFromURL extracts the hostname from an actor or object URL.
func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// readDataset reads a flushed dataset back from disk and returns each row
// as a field-name map. Post-processing consumes the temporary datasets this
// way rather than holding millions of rows in memory during the crawl.
func readDataset(path string, visit func(row map[string]string) error) error {
	file, err := os.Open(path) //nolint:gosec // Path comes from the run's own sink
	if err != nil {
		return fmt.Errorf("cannot read dataset back: %w", err)
	}
	defer file.Close() //nolint:errcheck // Read-only file

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("cannot read dataset header: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cannot read dataset row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, field := range header {
			if i < len(record) {
				row[field] = record[i]
			}
		}
		if err := visit(row); err != nil {
			return err
		}
	}
}
