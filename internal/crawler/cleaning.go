package crawler

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/fedigraph/fedigraph/internal/model"
	"github.com/fedigraph/fedigraph/internal/sink"
)

// Clean enforces referential integrity on a run's relation datasets: every
// edge whose Source or Target is not a node with an empty error is dropped.
// Node rows themselves are kept, failed ones included; failure is visible
// as a non-empty error string, never as a missing row.
//
// Clean is idempotent: rerunning it over already-clean datasets rewrites
// them unchanged. Returns the kept edge count per relation dataset.
func Clean(resultSink *sink.Sink, datasets []Dataset) (map[string]int, error) {
	instancesPath, err := resultSink.Path(DatasetInstances)
	if err != nil {
		return nil, err
	}

	var relationPaths []string
	relationNames := make(map[string]string)
	for _, ds := range datasets {
		if ds.Temporary || !slices.Equal(ds.Fields, model.RelationFields()) {
			continue
		}
		path, err := resultSink.Path(ds.Name)
		if err != nil {
			return nil, err
		}
		relationPaths = append(relationPaths, path)
		relationNames[path] = ds.Name
	}

	keptByPath, err := cleanFiles(instancesPath, relationPaths)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]int, len(keptByPath))
	for path, count := range keptByPath {
		kept[relationNames[path]] = count
	}
	return kept, nil
}

// cleanFiles is the file-level cleaning pass, separated from the sink so
// it can run repeatedly over the same inputs.
func cleanFiles(instancesPath string, relationPaths []string) (map[string]int, error) {
	working, err := workingHosts(instancesPath)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]int, len(relationPaths))
	for _, path := range relationPaths {
		count, err := rewriteRelations(path, working)
		if err != nil {
			return nil, err
		}
		kept[path] = count
	}
	return kept, nil
}

// workingHosts reads the node table and returns the set of hosts with an
// empty error column.
func workingHosts(instancesPath string) (map[string]bool, error) {
	file, err := os.Open(instancesPath) //nolint:gosec // Path comes from the run's own sink
	if err != nil {
		return nil, fmt.Errorf("cannot read node table: %w", err)
	}
	defer file.Close() //nolint:errcheck // Read-only file

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read node table header: %w", err)
	}
	hostIdx := slices.Index(header, model.FieldHost)
	errorIdx := slices.Index(header, model.FieldError)
	if hostIdx < 0 || errorIdx < 0 {
		return nil, fmt.Errorf("node table %s is missing the host or error column", instancesPath)
	}

	working := make(map[string]bool)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read node table: %w", err)
		}
		if row[errorIdx] == "" {
			working[row[hostIdx]] = true
		}
	}
	return working, nil
}

// rewriteRelations rewrites one relation CSV in place, keeping only edges
// between working hosts. The rewrite goes through a sibling temp file and
// a rename so a crash mid-clean never leaves a half-written table.
func rewriteRelations(path string, working map[string]bool) (int, error) {
	in, err := os.Open(path) //nolint:gosec // Path comes from the run's own sink
	if err != nil {
		return 0, fmt.Errorf("cannot read relation table: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only file

	cleanPath := path + ".clean"
	out, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("cannot create clean relation table: %w", err)
	}

	reader := csv.NewReader(in)
	writer := csv.NewWriter(out)

	header, err := reader.Read()
	if err != nil {
		_ = out.Close()           //nolint:errcheck // Already failing
		_ = os.Remove(cleanPath)  //nolint:errcheck // Best effort
		return 0, fmt.Errorf("cannot read relation table header: %w", err)
	}
	sourceIdx := slices.Index(header, model.FieldSource)
	targetIdx := slices.Index(header, model.FieldTarget)
	if sourceIdx < 0 || targetIdx < 0 {
		_ = out.Close()          //nolint:errcheck // Already failing
		_ = os.Remove(cleanPath) //nolint:errcheck // Best effort
		return 0, fmt.Errorf("relation table %s is missing the Source or Target column", path)
	}

	if err := writer.Write(header); err != nil {
		_ = out.Close()          //nolint:errcheck // Already failing
		_ = os.Remove(cleanPath) //nolint:errcheck // Best effort
		return 0, err
	}

	count := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = out.Close()          //nolint:errcheck // Already failing
			_ = os.Remove(cleanPath) //nolint:errcheck // Best effort
			return 0, fmt.Errorf("cannot read relation table: %w", err)
		}
		if !working[row[sourceIdx]] || !working[row[targetIdx]] {
			continue
		}
		if err := writer.Write(row); err != nil {
			_ = out.Close()          //nolint:errcheck // Already failing
			_ = os.Remove(cleanPath) //nolint:errcheck // Best effort
			return 0, err
		}
		count++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = out.Close()          //nolint:errcheck // Already failing
		_ = os.Remove(cleanPath) //nolint:errcheck // Best effort
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(cleanPath, path); err != nil {
		return 0, fmt.Errorf("cannot replace relation table: %w", err)
	}
	return count, nil
}
