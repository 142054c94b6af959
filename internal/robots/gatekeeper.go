package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/fedigraph/fedigraph/internal/fetch"
)

const (
	// DefaultDelay is the politeness delay between consecutive requests to
	// one host when its robots.txt declares no rate preference.
	DefaultDelay = 400 * time.Millisecond

	// MaxDelay is the sanity ceiling on a declared crawl delay. A host
	// asking for more than this is impractical to crawl within one run and
	// is vetoed instead.
	MaxDelay = 60 * time.Second

	// robotsFetchTimeout bounds the robots.txt fetch itself.
	robotsFetchTimeout = 180 * time.Second

	// maxRobotsSize bounds the robots.txt body; real policies are tiny.
	maxRobotsSize = 512 * 1024
)

// Result is the outcome of vetting one host.
type Result struct {
	// Host is the vetted hostname.
	Host string

	// Allowed reports whether the host may be crawled.
	Allowed bool

	// Reason describes why a host was vetoed; empty when allowed.
	Reason string

	// Delay is the enforced minimum delay between consecutive requests to
	// this host. Only meaningful when Allowed is true.
	Delay time.Duration
}

// Gatekeeper vets hosts against their published crawl policy.
//
// The gatekeeper shares the run's concurrency limiter: robots.txt fetches
// are network operations like any other and must not exceed the global cap.
type Gatekeeper struct {
	httpClient *http.Client
	limiter    *fetch.Limiter
	logger     *slog.Logger
	userAgent  string

	// endpoints are the API paths the crawl subject will request.
	// A disallow rule against any of them vetoes the host entirely.
	endpoints []string
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithHTTPClient replaces the underlying http.Client. Tests use this to
// point the gatekeeper at httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gatekeeper) {
		g.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gatekeeper) {
		g.logger = logger
	}
}

// WithUserAgent sets the agent name matched against robots.txt groups.
func WithUserAgent(ua string) Option {
	return func(g *Gatekeeper) {
		g.userAgent = ua
	}
}

// NewGatekeeper creates a gatekeeper for the given API endpoints.
// The endpoint list must not be empty: a crawler that declares no paths
// cannot be vetted and is a programming error caught at construction.
func NewGatekeeper(limiter *fetch.Limiter, endpoints []string, opts ...Option) (*Gatekeeper, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("invalid crawler: no API endpoint listed")
	}

	g := &Gatekeeper{
		limiter:   limiter,
		userAgent: fetch.DefaultUserAgent,
		endpoints: endpoints,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: robotsFetchTimeout}
	}
	return g, nil
}

// Vet fetches and interprets https://<host>/robots.txt.
// It never returns an error: every failure mode maps onto a vetoed Result,
// because a host we cannot vet is a host we must not crawl.
func (g *Gatekeeper) Vet(ctx context.Context, host string) Result {
	body, status, err := g.fetchRobots(ctx, host)
	if err != nil {
		g.logger.Warn("error while fetching robots.txt", "host", host, "error", err)
		return vetoed(host, "problem while fetching robots.txt: "+err.Error())
	}

	switch status {
	case http.StatusNotFound:
		// No policy declared means crawling is allowed at the default pace.
		g.logger.Debug("no robots.txt", "host", host)
		return Result{Host: host, Allowed: true, Delay: DefaultDelay}
	case http.StatusOK:
		g.logger.Debug("found robots.txt", "host", host)
	default:
		g.logger.Warn("unexpected status while fetching robots.txt",
			"host", host,
			"status", status,
		)
		return vetoed(host, fmt.Sprintf("unexpected status %d while fetching robots.txt", status))
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		g.logger.Warn("unparseable robots.txt", "host", host, "error", err)
		return vetoed(host, "unparseable robots.txt: "+err.Error())
	}

	group := data.FindGroup(g.userAgent)
	for _, endpoint := range g.endpoints {
		if !group.Test(endpoint) || !group.Test(endpoint+"/") {
			g.logger.Debug("robots.txt disallows the crawl", "host", host, "path", endpoint)
			return vetoed(host, "robots.txt disallows crawling "+endpoint)
		}
	}

	delay := DefaultDelay
	if group.CrawlDelay > 0 {
		delay = group.CrawlDelay
	}
	if rateDelay, ok := parseRequestRate(body); ok && rateDelay > delay {
		delay = rateDelay
	}
	if delay > MaxDelay {
		g.logger.Warn("crawl delay too high", "host", host, "delay", delay)
		return vetoed(host, fmt.Sprintf("declared crawl delay is too high (%s)", delay))
	}

	return Result{Host: host, Allowed: true, Delay: delay}
}

// fetchRobots retrieves the robots.txt body through the shared limiter.
func (g *Gatekeeper) fetchRobots(ctx context.Context, host string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, robotsFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "https://"+host+"/robots.txt", nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer g.limiter.Release()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// parseRequestRate scans for a Request-rate directive and converts it to a
// seconds-per-request delay. The directive has the form "n/m": n requests
// per m seconds, i.e. m/n seconds between requests.
//
// robotstxt does not parse this nonstandard directive, but enough fediverse
// instances publish it that ignoring it would defeat the politeness
// contract.
func parseRequestRate(body []byte) (time.Duration, bool) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		key, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "request-rate") {
			continue
		}

		requests, seconds, found := strings.Cut(strings.TrimSpace(value), "/")
		if !found {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(requests), 64)
		if err != nil || n <= 0 {
			continue
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(seconds), 64)
		if err != nil || m <= 0 {
			continue
		}
		return time.Duration(m / n * float64(time.Second)), true
	}
	return 0, false
}

func vetoed(host, reason string) Result {
	return Result{Host: host, Reason: reason}
}
