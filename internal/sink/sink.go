package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrUnknownDataset is returned when writing to a dataset that was never
// registered. Registration happens once at phase start; a miss here is a
// programming error in a crawler variant, not a runtime condition.
var ErrUnknownDataset = errors.New("unknown dataset")

// Sink manages the output datasets of one crawl run.
//
// Every dataset is an open append handle plus an exclusive lock: Write
// acquires the dataset's lock, appends one row, and releases, so rows are
// never interleaved or partial even under fully concurrent writers.
type Sink struct {
	dir string

	mu       sync.Mutex
	datasets map[string]*dataset
}

// dataset is one output CSV file.
type dataset struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	fields    []string
	path      string
	temporary bool
}

// New creates a sink writing into dir. The directory must already exist.
func New(dir string) *Sink {
	return &Sink{
		dir:      dir,
		datasets: make(map[string]*dataset),
	}
}

// Dir returns the sink's output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Register creates the dataset file <name>.csv with a header row.
// Registering a dataset that cannot be created is fatal to the run, so the
// error must be propagated, not recorded per host.
func (s *Sink) Register(name string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.datasets[name]; exists {
		return fmt.Errorf("dataset %q registered twice", name)
	}

	path := filepath.Join(s.dir, name+".csv")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cannot create dataset %q: %w", name, err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		_ = file.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("cannot write header of dataset %q: %w", name, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("cannot write header of dataset %q: %w", name, err)
	}

	s.datasets[name] = &dataset{
		file:   file,
		writer: writer,
		fields: append([]string(nil), fields...),
		path:   path,
	}
	return nil
}

// MarkTemporary declares a dataset as intermediate: it is consumed during
// post-processing and removed by the cleaning phase.
func (s *Sink) MarkTemporary(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds, ok := s.datasets[name]; ok {
		ds.temporary = true
	}
}

// Write appends one row to the named dataset.
func (s *Sink) Write(name string, row []string) error {
	ds, err := s.dataset(name)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.writer.Write(row); err != nil {
		return fmt.Errorf("cannot append to dataset %q: %w", name, err)
	}
	return nil
}

// WriteAll appends several rows under a single lock acquisition, so a
// host's batch of relations lands contiguously.
func (s *Sink) WriteAll(name string, rows [][]string) error {
	ds, err := s.dataset(name)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, row := range rows {
		if err := ds.writer.Write(row); err != nil {
			return fmt.Errorf("cannot append to dataset %q: %w", name, err)
		}
	}
	return nil
}

// Fields returns the header of the named dataset.
func (s *Sink) Fields(name string) ([]string, error) {
	ds, err := s.dataset(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), ds.fields...), nil
}

// Path returns the file path of the named dataset, for read-back after
// Flush.
func (s *Sink) Path(name string) (string, error) {
	ds, err := s.dataset(name)
	if err != nil {
		return "", err
	}
	return ds.path, nil
}

// Names returns all registered dataset names.
func (s *Sink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	return names
}

// Temporary returns the names of datasets marked temporary.
func (s *Sink) Temporary() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name, ds := range s.datasets {
		if ds.temporary {
			names = append(names, name)
		}
	}
	return names
}

// Flush forces all buffered rows to disk. The graph builder reads datasets
// back from disk, so Flush must run after the inspection phase and before
// any read-back.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, ds := range s.datasets {
		ds.mu.Lock()
		ds.writer.Flush()
		if err := ds.writer.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush of dataset %q: %w", name, err))
		}
		ds.mu.Unlock()
	}
	return errors.Join(errs...)
}

// RemoveTemporary deletes every dataset marked temporary from disk.
// Called by the cleaning phase after post-processing consumed them.
func (s *Sink) RemoveTemporary() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, ds := range s.datasets {
		if !ds.temporary {
			continue
		}
		ds.mu.Lock()
		ds.writer.Flush()
		if err := ds.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close of dataset %q: %w", name, err))
		}
		if err := os.Remove(ds.path); err != nil {
			errs = append(errs, fmt.Errorf("remove of dataset %q: %w", name, err))
		}
		ds.mu.Unlock()
		delete(s.datasets, name)
	}
	return errors.Join(errs...)
}

// Close flushes and closes every dataset handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, ds := range s.datasets {
		ds.mu.Lock()
		ds.writer.Flush()
		if err := ds.writer.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush of dataset %q: %w", name, err))
		}
		if err := ds.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close of dataset %q: %w", name, err))
		}
		ds.mu.Unlock()
	}
	s.datasets = make(map[string]*dataset)
	return errors.Join(errs...)
}

func (s *Sink) dataset(name string) (*dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return ds, nil
}
