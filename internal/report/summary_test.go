package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fedigraph/fedigraph/internal/crawler"
)

func testStats() *crawler.Stats {
	return &crawler.Stats{
		Software:  "lemmy",
		Subject:   "federation",
		RunDir:    "/tmp/crawl_lemmy_federation_20260831",
		StartedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Elapsed:   90*time.Second + 300*time.Millisecond,
		Seeds:     10,
		Vetoed:    2,
		Succeeded: 6,
		Failed:    2,
		KeptEdges: map[string]int{"interactions": 14},
		Errors:    map[string]int{"connection refused": 2},
	}
}

func TestSummaryWriter(t *testing.T) {
	t.Parallel()

	t.Run("full summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewSummaryWriter(&buf).Write(testStats()); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got := buf.String()

		for _, want := range []string{
			"# Crawl Summary",
			"## Nodes",
			"## Edges",
			"## Most Frequent Errors",
			"lemmy",
			"federation",
			"crawl_lemmy_federation_20260831",
			"1m30s",
			"75.0%",
			"interactions.csv",
			"connection refused",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("summary missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("no edges and no errors skips those sections", func(t *testing.T) {
		t.Parallel()

		stats := testStats()
		stats.KeptEdges = nil
		stats.Errors = nil

		var buf bytes.Buffer
		if err := NewSummaryWriter(&buf).Write(stats); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got := buf.String()

		if strings.Contains(got, "## Edges") {
			t.Error("edge section must be absent without kept edges")
		}
		if strings.Contains(got, "## Most Frequent Errors") {
			t.Error("error section must be absent without failures")
		}
	})

	t.Run("success rate without crawled hosts", func(t *testing.T) {
		t.Parallel()

		stats := testStats()
		stats.Succeeded = 0
		stats.Failed = 0

		var buf bytes.Buffer
		if err := NewSummaryWriter(&buf).Write(stats); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), "n/a") {
			t.Errorf("expected n/a success rate:\n%s", buf.String())
		}
	})

	t.Run("error table is capped", func(t *testing.T) {
		t.Parallel()

		stats := testStats()
		stats.Errors = make(map[string]int)
		for i := 0; i < maxErrorRows+5; i++ {
			stats.Errors[fmt.Sprintf("error-%02d", i)] = i + 1
		}

		var buf bytes.Buffer
		if err := NewSummaryWriter(&buf).Write(stats); err != nil {
			t.Fatalf("Write: %v", err)
		}

		// The rarest errors fall off the table.
		if !strings.Contains(buf.String(), "error-14") {
			t.Errorf("expected the most frequent error to be kept:\n%s", buf.String())
		}
		if strings.Contains(buf.String(), "error-00") {
			t.Errorf("expected the least frequent error to be dropped:\n%s", buf.String())
		}
	})
}

func TestWriteSummaryFile(t *testing.T) {
	t.Parallel()

	stats := testStats()
	stats.RunDir = t.TempDir()

	path, err := WriteSummaryFile(stats)
	if err != nil {
		t.Fatalf("WriteSummaryFile: %v", err)
	}
	if path != filepath.Join(stats.RunDir, SummaryFileName) {
		t.Errorf("unexpected summary path: %s", path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // Test-owned path
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# Crawl Summary") {
		t.Errorf("summary file content unexpected:\n%s", string(data))
	}
}
