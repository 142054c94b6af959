package crawler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/logging"
	"github.com/fedigraph/fedigraph/internal/model"
	"github.com/fedigraph/fedigraph/internal/robots"
	"github.com/fedigraph/fedigraph/internal/sink"
)

// Stats summarizes one completed run for the archive and the run summary.
type Stats struct {
	// Software and Subject identify the crawl variant.
	Software string
	Subject  string

	// RunDir is the result directory of the run.
	RunDir string

	// StartedAt and Elapsed bound the run.
	StartedAt time.Time
	Elapsed   time.Duration

	// Seeds is the number of candidate hosts.
	Seeds int

	// Vetoed is how many hosts the policy check excluded.
	Vetoed int

	// Succeeded and Failed count node records by empty/non-empty error;
	// every seed ends in exactly one of the two.
	Succeeded int
	Failed    int

	// KeptEdges is the per-relation-dataset edge count after cleaning.
	KeptEdges map[string]int

	// Errors counts node error messages, for the summary's top-failures
	// table.
	Errors map[string]int
}

// Orchestrator drives one crawl run through its phases. It exclusively
// owns the node set and the phase state machine.
type Orchestrator struct {
	inspector Inspector
	cfg       *config.Config

	// version is written into the run directory for reproducibility.
	version string

	// httpClient and backoff exist so tests can point a run at httptest
	// servers without wall-clock retry sleeps. Both nil/empty in
	// production.
	httpClient *http.Client
	backoff    []time.Duration
	userAgent  string

	mu    sync.Mutex
	phase Phase
	stats *Stats
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithVersion sets the version string written to the run directory.
func WithVersion(version string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.version = version
	}
}

// WithHTTPClient replaces the HTTP client used for API and robots.txt
// fetches.
func WithHTTPClient(hc *http.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		o.httpClient = hc
	}
}

// WithBackoff replaces the fetch retry ladder.
func WithBackoff(delays []time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.backoff = delays
	}
}

// WithUserAgent overrides the crawler's User-Agent header.
func WithUserAgent(ua string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.userAgent = ua
	}
}

// NewOrchestrator creates an orchestrator for one inspector and one run.
// Orchestrators are single-use: Run may be called once.
func NewOrchestrator(inspector Inspector, cfg *config.Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		inspector: inspector,
		cfg:       cfg,
		version:   "dev",
		phase:     PhaseCreated,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current lifecycle state.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// fail marks the run failed and wraps the fatal error with the phase it
// happened in.
func (o *Orchestrator) fail(phase Phase, err error) error {
	o.setPhase(PhaseFailed)
	return fmt.Errorf("crawl failed during %s: %w", phase, err)
}

// Run executes the crawl over the given seed hosts.
//
// Only fatal errors are returned: a run that cannot create its output
// directory or datasets aborts, everything per-host lands in the node
// table. On success the returned stats describe the completed run.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) (*Stats, error) {
	software := o.inspector.Software()
	subject := o.inspector.Subject()

	if len(seeds) == 0 {
		return nil, o.fail(PhaseCreated, fmt.Errorf("no host to crawl"))
	}

	stats := &Stats{
		Software:  software,
		Subject:   subject,
		StartedAt: time.Now(),
		Seeds:     len(seeds),
		KeptEdges: make(map[string]int),
		Errors:    make(map[string]int),
	}
	o.stats = stats

	// Run directory and datasets: failures here are fatal.
	runDir := filepath.Join(o.cfg.OutputDir,
		fmt.Sprintf("%s_%s_%s", software, subject, stats.StartedAt.Format("20060102-150405")))
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, o.fail(PhaseCreated, fmt.Errorf("cannot create run directory: %w", err))
	}
	stats.RunDir = runDir

	logger, err := logging.NewRunLogger(
		filepath.Join(runDir, fmt.Sprintf("crawl_%s_%s.log", software, subject)),
		o.cfg.Verbose,
	)
	if err != nil {
		return nil, o.fail(PhaseCreated, fmt.Errorf("cannot create run log: %w", err))
	}
	defer logger.Close() //nolint:errcheck // Log file close failure is not actionable

	if err := os.WriteFile(filepath.Join(runDir, "version.txt"), []byte(o.version+"\n"), 0o600); err != nil {
		return nil, o.fail(PhaseCreated, fmt.Errorf("cannot write version file: %w", err))
	}

	datasets := o.inspector.Datasets()
	resultSink := sink.New(runDir)
	defer resultSink.Close() //nolint:errcheck // Flushed explicitly before reads
	for _, ds := range datasets {
		if err := resultSink.Register(ds.Name, ds.Fields); err != nil {
			return nil, o.fail(PhaseCreated, err)
		}
		if ds.Temporary {
			resultSink.MarkTemporary(ds.Name)
		}
	}

	limiter := fetch.NewLimiter(o.cfg.Concurrency)
	clientOpts := []fetch.Option{
		fetch.WithTimeout(o.cfg.Timeout),
		fetch.WithLogger(logger.Logger),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, fetch.WithHTTPClient(o.httpClient))
	}
	if o.backoff != nil {
		clientOpts = append(clientOpts, fetch.WithBackoff(o.backoff))
	}
	if o.userAgent != "" {
		clientOpts = append(clientOpts, fetch.WithUserAgent(o.userAgent))
	}

	env := &Env{
		Client: fetch.NewClient(limiter, clientOpts...),
		Pacer:  robots.NewPacer(),
		Sink:   resultSink,
		Logger: logger.Logger,
		Seeds:  seedSet(seeds),
	}

	nodeFields := datasets[0].Fields

	// Policy phase: vet every candidate concurrently, fail closed.
	o.setPhase(PhasePolicyCheck)
	logger.Info("analysing robots.txt", "software", software, "subject", subject, "hosts", len(seeds))

	allowed, err := o.policyCheck(ctx, env, limiter, seeds, nodeFields)
	if err != nil {
		return nil, o.fail(PhasePolicyCheck, err)
	}

	// Inspection phase: one task per allowed host; the phase ends only
	// when every task has produced its node record.
	o.setPhase(PhaseInspecting)
	logger.Info("crawl begins", "hosts", len(allowed))

	g, gctx := errgroup.WithContext(ctx)
	for _, host := range allowed {
		g.Go(func() error {
			record := o.inspectHost(gctx, env, host)
			return o.writeNode(env, nodeFields, record)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, o.fail(PhaseInspecting, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, o.fail(PhaseInspecting, err)
	}
	logger.Info("crawl completed", "hosts", len(allowed))

	// Post-processing phase: flush before any read-back.
	o.setPhase(PhasePostProcessing)
	if err := resultSink.Flush(); err != nil {
		return nil, o.fail(PhasePostProcessing, err)
	}
	if pp, ok := o.inspector.(PostProcessor); ok {
		logger.Info("processing the data")
		if err := pp.PostProcess(ctx, env); err != nil {
			return nil, o.fail(PhasePostProcessing, err)
		}
		if err := resultSink.Flush(); err != nil {
			return nil, o.fail(PhasePostProcessing, err)
		}
	}

	// Cleaning phase.
	o.setPhase(PhaseCleaning)
	logger.Info("cleaning the data")

	kept, err := Clean(resultSink, datasets)
	if err != nil {
		return nil, o.fail(PhaseCleaning, err)
	}
	stats.KeptEdges = kept
	if err := resultSink.RemoveTemporary(); err != nil {
		return nil, o.fail(PhaseCleaning, err)
	}

	o.setPhase(PhaseDone)
	stats.Elapsed = time.Since(stats.StartedAt)
	logger.Info("done",
		"elapsed", stats.Elapsed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return stats, nil
}

// policyCheck vets all seeds concurrently and returns the allowed subset.
// Vetoed hosts get their failed node record immediately and never run an
// inspector.
func (o *Orchestrator) policyCheck(ctx context.Context, env *Env, limiter *fetch.Limiter, seeds []string, nodeFields []string) ([]string, error) {
	gatekeeperOpts := []robots.Option{robots.WithLogger(env.Logger)}
	if o.httpClient != nil {
		gatekeeperOpts = append(gatekeeperOpts, robots.WithHTTPClient(o.httpClient))
	}
	if o.userAgent != "" {
		gatekeeperOpts = append(gatekeeperOpts, robots.WithUserAgent(o.userAgent))
	}
	gatekeeper, err := robots.NewGatekeeper(limiter, o.inspector.Endpoints(), gatekeeperOpts...)
	if err != nil {
		return nil, err
	}

	results := make([]robots.Result, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, host := range seeds {
		g.Go(func() error {
			results[i] = gatekeeper.Vet(gctx, host)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allowed []string
	for _, result := range results {
		if result.Allowed {
			env.Pacer.Admit(result.Host, result.Delay)
			allowed = append(allowed, result.Host)
			continue
		}
		record := model.NewNodeRecord(result.Host)
		record.Error = "crawling disallowed or problem while analysing robots.txt: " + result.Reason
		if err := o.writeNode(env, nodeFields, record); err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.stats.Vetoed++
		o.mu.Unlock()
	}
	return allowed, nil
}

// inspectHost runs one inspection, converting panics into failed node
// records so a bug in one variant never takes down the whole run.
func (o *Orchestrator) inspectHost(ctx context.Context, env *Env, host string) (record *model.NodeRecord) {
	defer func() {
		if r := recover(); r != nil {
			env.Logger.Error("inspector panicked", "host", host, "panic", r)
			record = model.NewNodeRecord(host)
			record.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	env.Logger.Debug("start inspecting instance", "host", host)
	record = o.inspector.Inspect(ctx, env, host)
	if record == nil {
		record = model.NewNodeRecord(host)
		record.Error = "inspector produced no record"
	}
	env.Logger.Debug("finished inspecting instance", "host", host, "error", record.Error)
	return record
}

// writeNode appends one node record to the instances dataset and updates
// the run stats. Dataset write failures are fatal.
func (o *Orchestrator) writeNode(env *Env, nodeFields []string, record *model.NodeRecord) error {
	if err := env.Sink.Write(DatasetInstances, record.Row(nodeFields)); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if record.Error == "" {
		o.stats.Succeeded++
	} else {
		o.stats.Failed++
		o.stats.Errors[record.Error]++
	}
	return nil
}

func seedSet(seeds []string) map[string]bool {
	set := make(map[string]bool, len(seeds))
	for _, host := range seeds {
		set[host] = true
	}
	return set
}
