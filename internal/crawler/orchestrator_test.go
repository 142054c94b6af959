package crawler

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

// insecureClient trusts any TLS certificate so one test client can talk to
// several httptest servers posing as different hosts.
func insecureClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // Test-only client
		},
	}
}

// testNode is one fake federation member: its robots.txt policy and the
// answer of its single API endpoint.
type testNode struct {
	robotsStatus int
	robotsBody   string
	apiStatus    int
	peers        []string

	apiCalls atomic.Int64
}

// startNode serves the node over TLS and returns its host:port.
func startNode(t *testing.T, node *testNode) string {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(node.robotsStatus)
			w.Write([]byte(node.robotsBody)) //nolint:errcheck // Test server
		case "/api/test":
			node.apiCalls.Add(1)
			if node.apiStatus != http.StatusOK {
				w.WriteHeader(node.apiStatus)
				return
			}
			resp := map[string]any{"answer": "42", "peers": node.peers}
			json.NewEncoder(w).Encode(resp) //nolint:errcheck // Test server
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "https://")
}

// testInspector is a minimal federation-style inspector for orchestrator
// tests.
type testInspector struct{}

func (f *testInspector) Software() string     { return "testware" }
func (f *testInspector) Subject() string      { return "federation" }
func (f *testInspector) Endpoints() []string  { return []string{"/api/test"} }
func (f *testInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: instanceFields("answer")},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

func (f *testInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var resp struct {
		Answer string   `json:"answer"`
		Peers  []string `json:"peers"`
	}
	err := env.Client.FetchJSON(ctx, fetch.Request{URL: "https://" + host + "/api/test"}, &resp)
	if err != nil {
		record.Fail(err)
		return record
	}
	record.Set("answer", resp.Answer)

	if err := writeRelations(env, DatasetInteractions, host, resp.Peers, model.WeightLinked); err != nil {
		record.Fail(err)
	}
	return record
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Softwares = []string{"testware"}
	cfg.OutputDir = t.TempDir()
	cfg.Concurrency = 8
	cfg.Timeout = 5 * time.Second
	return cfg
}

// TestOrchestratorRun drives a four-node network end to end: two healthy
// hosts, one that disallows crawling, one that answers 500.
func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	nodeA := &testNode{robotsStatus: http.StatusNotFound, apiStatus: http.StatusOK}
	nodeB := &testNode{robotsStatus: http.StatusNotFound, apiStatus: http.StatusOK}
	vetoedNode := &testNode{
		robotsStatus: http.StatusOK,
		robotsBody:   "User-agent: *\nDisallow: /api/\n",
	}
	failingNode := &testNode{robotsStatus: http.StatusNotFound, apiStatus: http.StatusInternalServerError}

	hostA := startNode(t, nodeA)
	hostB := startNode(t, nodeB)
	hostVetoed := startNode(t, vetoedNode)
	hostFailing := startNode(t, failingNode)

	nodeA.peers = []string{hostB, hostVetoed, hostFailing, "outsider.example"}
	nodeB.peers = []string{hostA}

	orch := NewOrchestrator(&testInspector{}, testConfig(t),
		WithVersion("test"),
		WithHTTPClient(insecureClient()),
		WithBackoff([]time.Duration{}),
	)

	seeds := []string{hostA, hostB, hostVetoed, hostFailing}
	stats, err := orch.Run(context.Background(), seeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	t.Run("phase machine ends in Done", func(t *testing.T) {
		if got := orch.Phase(); got != PhaseDone {
			t.Errorf("expected phase Done, got %s", got)
		}
	})

	t.Run("stats account for every seed", func(t *testing.T) {
		if stats.Seeds != 4 {
			t.Errorf("expected 4 seeds, got %d", stats.Seeds)
		}
		if stats.Vetoed != 1 {
			t.Errorf("expected 1 vetoed host, got %d", stats.Vetoed)
		}
		if stats.Succeeded != 2 {
			t.Errorf("expected 2 successes, got %d", stats.Succeeded)
		}
		if stats.Failed != 2 {
			t.Errorf("expected 2 failures (vetoed + 500), got %d", stats.Failed)
		}
	})

	t.Run("vetoed host never receives an API call", func(t *testing.T) {
		if calls := vetoedNode.apiCalls.Load(); calls != 0 {
			t.Errorf("vetoed host got %d API calls", calls)
		}
	})

	t.Run("node table holds one row per seed, failures included", func(t *testing.T) {
		rows := readCSV(t, filepath.Join(stats.RunDir, DatasetInstances+".csv"))
		if len(rows) != 5 {
			t.Fatalf("expected header plus 4 rows, got %d", len(rows))
		}
		byHost := make(map[string]string)
		for _, row := range rows[1:] {
			byHost[row[0]] = row[2] // host, answer, error, Id, Label
		}
		if byHost[hostA] != "" || byHost[hostB] != "" {
			t.Errorf("expected empty error for healthy hosts, got %q and %q", byHost[hostA], byHost[hostB])
		}
		if !strings.Contains(byHost[hostVetoed], "robots.txt") {
			t.Errorf("expected vetoed host error to mention robots.txt, got %q", byHost[hostVetoed])
		}
		if byHost[hostFailing] == "" {
			t.Error("expected the failing host to carry an error")
		}
	})

	t.Run("cleaned edges only connect healthy hosts", func(t *testing.T) {
		rows := readCSV(t, filepath.Join(stats.RunDir, DatasetInteractions+".csv"))
		want := map[string]bool{
			hostA + ">" + hostB: true,
			hostB + ">" + hostA: true,
		}
		if len(rows)-1 != len(want) {
			t.Fatalf("expected %d edges, got %v", len(want), rows[1:])
		}
		for _, row := range rows[1:] {
			if !want[row[0]+">"+row[1]] {
				t.Errorf("unexpected surviving edge %v", row)
			}
		}
		if stats.KeptEdges[DatasetInteractions] != 2 {
			t.Errorf("expected 2 kept edges in stats, got %d", stats.KeptEdges[DatasetInteractions])
		}
	})

	t.Run("run directory carries version and log files", func(t *testing.T) {
		version, err := os.ReadFile(filepath.Join(stats.RunDir, "version.txt"))
		if err != nil {
			t.Fatalf("version.txt: %v", err)
		}
		if strings.TrimSpace(string(version)) != "test" {
			t.Errorf("expected version 'test', got %q", version)
		}
		if _, err := os.Stat(filepath.Join(stats.RunDir, "crawl_testware_federation.log")); err != nil {
			t.Errorf("run log: %v", err)
		}
	})
}

// TestOrchestratorRunNoSeeds verifies the empty seed list is fatal.
func TestOrchestratorRunNoSeeds(t *testing.T) {
	t.Parallel()

	orch := NewOrchestrator(&testInspector{}, testConfig(t))
	if _, err := orch.Run(context.Background(), nil); err == nil {
		t.Fatal("expected an error for an empty seed list")
	}
	if got := orch.Phase(); got != PhaseFailed {
		t.Errorf("expected phase Failed, got %s", got)
	}
}

// TestOrchestratorPanicRecovery verifies that a panicking inspector turns
// into a failed node record instead of taking the run down.
func TestOrchestratorPanicRecovery(t *testing.T) {
	t.Parallel()

	node := &testNode{robotsStatus: http.StatusNotFound, apiStatus: http.StatusOK}
	host := startNode(t, node)

	orch := NewOrchestrator(&panickingInspector{}, testConfig(t),
		WithHTTPClient(insecureClient()),
		WithBackoff([]time.Duration{}),
	)
	stats, err := orch.Run(context.Background(), []string{host})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("expected the panicking host to be recorded as failed, got %+v", stats)
	}

	rows := readCSV(t, filepath.Join(stats.RunDir, DatasetInstances+".csv"))
	if len(rows) != 2 || !strings.Contains(rows[1][1], "internal error") {
		t.Errorf("expected an internal error row, got %v", rows)
	}
}

type panickingInspector struct{}

func (p *panickingInspector) Software() string    { return "testware" }
func (p *panickingInspector) Subject() string     { return "federation" }
func (p *panickingInspector) Endpoints() []string { return []string{"/api/test"} }
func (p *panickingInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: instanceFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

func (p *panickingInspector) Inspect(context.Context, *Env, string) *model.NodeRecord {
	panic("inspector bug")
}
