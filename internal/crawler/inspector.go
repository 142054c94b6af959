package crawler

import (
	"context"
	"log/slog"
	"sort"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
	"github.com/fedigraph/fedigraph/internal/robots"
	"github.com/fedigraph/fedigraph/internal/sink"
)

// Standard dataset names shared by the crawl subjects.
const (
	// DatasetInstances is the node table every subject produces.
	DatasetInstances = "instances"

	// DatasetInteractions is the single relation table of federation
	// subjects.
	DatasetInteractions = "interactions"
)

// Dataset declares one output CSV a crawl subject produces.
type Dataset struct {
	// Name is the logical dataset name; the file is <Name>.csv.
	Name string

	// Fields is the CSV header.
	Fields []string

	// Temporary marks intermediate datasets consumed by post-processing
	// and removed during cleaning.
	Temporary bool
}

// Env is the run context handed to every inspector invocation. It is
// populated once before the inspection phase and treated as immutable
// thereafter; inspectors share no other state.
type Env struct {
	// Client issues API requests.
	Client *fetch.Client

	// Pacer enforces each host's politeness delay between paginated calls.
	Pacer *robots.Pacer

	// Sink receives relation and auxiliary rows. Node records are written
	// by the orchestrator, exactly once per host.
	Sink *sink.Sink

	// Logger is the run logger.
	Logger *slog.Logger

	// Seeds is the set of hosts in this run. Relations targeting hosts
	// outside the run are dropped at write time to minimize cleaning.
	Seeds map[string]bool
}

// Inspector is the capability one crawl subject implements for one
// federated software: visit a host, produce its node record, and write its
// relations through the sink.
//
// Inspect must confine every per-host failure to the returned record's
// error field; returning is the only way out, raising is not an option the
// orchestrator forgives (panics become failed node records).
type Inspector interface {
	// Software is the federated software name (e.g. "lemmy").
	Software() string

	// Subject is the kind of graph extracted (e.g. "federation").
	Subject() string

	// Endpoints are the API paths this subject requests, evaluated against
	// each host's robots.txt before any data fetch.
	Endpoints() []string

	// Datasets declares every output dataset, the instances dataset first.
	Datasets() []Dataset

	// Inspect visits one host and returns its node record.
	Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord
}

// PostProcessor is implemented by subjects that aggregate raw interaction
// records into derived graphs after the inspection phase.
type PostProcessor interface {
	// PostProcess runs once, after all inspections finished and the sink
	// was flushed. Errors here are fatal to the run.
	PostProcess(ctx context.Context, env *Env) error
}

// Constructor builds one Inspector from the run configuration.
type Constructor func(cfg *config.Config) Inspector

// registry maps software name to the constructors of its crawl subjects.
var registry = make(map[string][]Constructor)

// register adds a subject constructor for a software. Called from init
// functions of the variant files; the registered set is closed at build
// time.
func register(software string, c Constructor) {
	registry[software] = append(registry[software], c)
}

// Softwares returns every registered software name, sorted.
func Softwares() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForSoftware returns the subject constructors registered for a software.
func ForSoftware(software string) ([]Constructor, bool) {
	constructors, ok := registry[software]
	return constructors, ok
}
