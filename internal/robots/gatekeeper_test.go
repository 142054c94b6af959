package robots

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fedigraph/fedigraph/internal/fetch"
)

func testGatekeeper(t *testing.T, server *httptest.Server, endpoints []string) *Gatekeeper {
	t.Helper()
	g, err := NewGatekeeper(fetch.NewLimiter(4), endpoints,
		WithHTTPClient(server.Client()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewGatekeeper: %v", err)
	}
	return g
}

// robotsServer serves the given robots.txt body (or the given status when
// body is empty) and fails the test if any other path is requested.
func robotsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("unexpected request to %s: vetting must only fetch robots.txt", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck // Test server
	}))
}

func serverHost(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "https://")
}

func TestNewGatekeeperRequiresEndpoints(t *testing.T) {
	t.Parallel()

	if _, err := NewGatekeeper(fetch.NewLimiter(1), nil); err == nil {
		t.Error("expected an error for an empty endpoint list")
	}
}

func TestVet(t *testing.T) {
	t.Parallel()

	endpoints := []string{"/api/v3/site"}

	t.Run("missing robots.txt allows crawling at the default pace", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusNotFound, "")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if !result.Allowed {
			t.Fatalf("expected allowed, vetoed with %q", result.Reason)
		}
		if result.Delay != DefaultDelay {
			t.Errorf("expected default delay %s, got %s", DefaultDelay, result.Delay)
		}
	})

	t.Run("declared crawl delay above the ceiling vetoes the host", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 120\n")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if result.Allowed {
			t.Fatal("expected veto for a 120s crawl delay")
		}
		if !strings.Contains(result.Reason, "too high") {
			t.Errorf("expected reason to mention the delay, got %q", result.Reason)
		}
	})

	t.Run("403 on robots.txt fails closed", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusForbidden, "")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if result.Allowed {
			t.Fatal("expected veto when robots.txt cannot be read")
		}
	})

	t.Run("disallowed endpoint vetoes the host", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /api/\n")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if result.Allowed {
			t.Fatal("expected veto for a disallowed API path")
		}
		if !strings.Contains(result.Reason, "/api/v3/site") {
			t.Errorf("expected reason to name the blocked path, got %q", result.Reason)
		}
	})

	t.Run("moderate crawl delay is adopted", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 2\n")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if !result.Allowed {
			t.Fatalf("expected allowed, vetoed with %q", result.Reason)
		}
		if result.Delay != 2*time.Second {
			t.Errorf("expected 2s delay, got %s", result.Delay)
		}
	})

	t.Run("request-rate raises the delay when stricter", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusOK, "User-agent: *\nRequest-rate: 1/5\n")
		defer server.Close()

		result := testGatekeeper(t, server, endpoints).Vet(context.Background(), serverHost(server))
		if !result.Allowed {
			t.Fatalf("expected allowed, vetoed with %q", result.Reason)
		}
		if result.Delay != 5*time.Second {
			t.Errorf("expected 5s delay from Request-rate 1/5, got %s", result.Delay)
		}
	})

	t.Run("unreachable host fails closed", func(t *testing.T) {
		t.Parallel()
		server := robotsServer(t, http.StatusOK, "")
		gatekeeper := testGatekeeper(t, server, endpoints)
		server.Close()

		result := gatekeeper.Vet(context.Background(), serverHost(server))
		if result.Allowed {
			t.Fatal("expected veto for an unreachable host")
		}
	})
}

func TestParseRequestRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		want  time.Duration
		found bool
	}{
		{
			name:  "one request per two seconds",
			body:  "Request-rate: 1/2",
			want:  2 * time.Second,
			found: true,
		},
		{
			name:  "ten requests per second",
			body:  "request-rate: 10/1",
			want:  100 * time.Millisecond,
			found: true,
		},
		{
			name:  "directive with surrounding rules",
			body:  "User-agent: *\nDisallow: /admin\nRequest-rate: 1/10\n",
			want:  10 * time.Second,
			found: true,
		},
		{
			name:  "comment is stripped",
			body:  "Request-rate: 1/3 # be gentle",
			want:  3 * time.Second,
			found: true,
		},
		{name: "absent directive", body: "User-agent: *\nDisallow:\n"},
		{name: "malformed value", body: "Request-rate: fast"},
		{name: "zero denominator", body: "Request-rate: 1/0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := parseRequestRate([]byte(tt.body))
			if found != tt.found {
				t.Fatalf("expected found=%v, got %v", tt.found, found)
			}
			if found && got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
