package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLemmyCommunityInspect(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/site":
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // Test server
				"version": "0.19.3",
				"site_view": map[string]any{
					"counts":     map[string]any{"users": 50},
					"local_site": map[string]any{"federation_enabled": true},
				},
			})
		case "/api/v3/community/list":
			if got := r.URL.Query().Get("type_"); got != "Local" {
				t.Errorf("expected type_=Local, got %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // Test server
				"communities": []map[string]any{
					{
						"community": map[string]any{"name": "books"},
						"counts": map[string]any{
							"subscribers":        100,
							"posts":              5,
							"comments":           9,
							"users_active_day":   3,
							"users_active_week":  10,
							"users_active_month": 20,
						},
					},
					{
						"community": map[string]any{"name": "niche"},
						"counts":    map[string]any{"users_active_month": 2},
					},
				},
			})
		case "/api/v3/post/list":
			if got := r.URL.Query().Get("community_name"); got != "books" {
				t.Errorf("unexpected post list for community %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // Test server
				"posts": []map[string]any{
					{
						"post":    map[string]any{"ap_id": "https://a.example/post/1"},
						"creator": map[string]any{"name": "alice", "actor_id": "https://a.example/u/alice"},
					},
					{
						"post":    map[string]any{"ap_id": "https://outsider.example/post/2"},
						"creator": map[string]any{"name": "bob", "actor_id": "https://outsider.example/u/bob"},
					},
				},
			})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer server.Close()

	host := envHost(server)
	inspector := &lemmyCommunityInspector{activityScope: "TopMonth", minActiveUsers: 5}
	env := newTestEnv(t, server, inspector.Datasets(), host, "a.example")

	record := inspector.Inspect(context.Background(), env, host)
	if record.Error != "" {
		t.Fatalf("unexpected record error: %s", record.Error)
	}
	if err := env.Sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Only the community above the active-user threshold is kept.
	ownershipPath, _ := env.Sink.Path(DatasetCommunityOwnership)
	ownership := readCSV(t, ownershipPath)
	if len(ownership) != 2 {
		t.Fatalf("expected 1 ownership row, got %v", ownership)
	}
	if ownership[1][0] != host || ownership[1][1] != "books" {
		t.Errorf("unexpected ownership row: %v", ownership[1])
	}
	if ownership[1][2] != "100" || ownership[1][7] != "20" {
		t.Errorf("community counters lost: %v", ownership[1])
	}

	// The outsider's post contributes no interaction row.
	detailedPath, _ := env.Sink.Path(DatasetDetailedInteractions)
	detailed := readCSV(t, detailedPath)
	want := [][]string{
		lemmyDetailedInteractionFields(),
		{"a.example", "books@" + host, host, "alice", "https://a.example/post/1"},
	}
	if !reflect.DeepEqual(detailed, want) {
		t.Errorf("expected %v, got %v", want, detailed)
	}
}

func TestLemmyCommunityPostProcess(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	inspector := &lemmyCommunityInspector{activityScope: "TopMonth", minActiveUsers: 5}
	env := newTestEnv(t, server, inspector.Datasets())

	ownership := [][]string{
		{"a.example", "books", "100", "5", "9", "3", "10", "20"},
		{"b.example", "films", "40", "2", "1", "1", "4", "8"},
	}
	if err := env.Sink.WriteAll(DatasetCommunityOwnership, ownership); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	// a.example's users post twice in their own community and once in
	// b.example's; b.example's users post once in a.example's community.
	detailed := [][]string{
		{"a.example", "books@a.example", "a.example", "alice", "p1"},
		{"a.example", "books@a.example", "a.example", "anna", "p2"},
		{"a.example", "films@b.example", "b.example", "alice", "p3"},
		{"b.example", "books@a.example", "a.example", "bob", "p4"},
	}
	if err := env.Sink.WriteAll(DatasetDetailedInteractions, detailed); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := env.Sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := inspector.PostProcess(context.Background(), env); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if err := env.Sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	intraPath, _ := env.Sink.Path(DatasetIntraInstance)
	intra := readCSV(t, intraPath)
	wantIntra := [][]string{
		{"Source", "Target", "Weight"},
		{"a.example", "a.example", "2"},
		{"a.example", "b.example", "1"},
		{"b.example", "a.example", "1"},
	}
	if !reflect.DeepEqual(intra, wantIntra) {
		t.Errorf("expected %v, got %v", wantIntra, intra)
	}

	crossPath, _ := env.Sink.Path(DatasetCrossInstance)
	cross := readCSV(t, crossPath)
	wantCross := [][]string{
		{"Source", "Target", "Weight"},
		{"a.example", "a.example", "2"},
		{"a.example", "b.example", "1"},
		{"b.example", "a.example", "1"},
		{"b.example", "b.example", "1"},
	}
	if !reflect.DeepEqual(cross, wantCross) {
		t.Errorf("expected %v, got %v", wantCross, cross)
	}

	// Activity row order depends on map iteration; compare as a map.
	activityPath, _ := env.Sink.Path(DatasetCommunityActivity)
	activity := readCSV(t, activityPath)
	counts := make(map[string]string)
	for _, row := range activity[1:] {
		counts[row[0]+"/"+row[1]] = row[2]
	}
	wantCounts := map[string]string{
		"a.example/books@a.example": "3",
		"b.example/films@b.example": "1",
	}
	if !reflect.DeepEqual(counts, wantCounts) {
		t.Errorf("expected %v, got %v", wantCounts, counts)
	}
}
