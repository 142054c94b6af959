package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Default client settings.
const (
	// DefaultTimeout is the per-request timeout. Generous because small
	// single-operator instances can be very slow without being down.
	DefaultTimeout = 180 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests and in each
	// node's robots.txt evaluation. A descriptive User-Agent lets operators
	// identify and, via robots.txt, refuse crawler traffic.
	DefaultUserAgent = "Fedigraph, the Fediverse Graph Crawler (+https://github.com/fedigraph/fedigraph)"

	// DefaultMaxBodySize limits the response body size to read.
	// Federation peer lists can be large but are still bounded; anything
	// beyond this is a misbehaving endpoint.
	DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB

	// maxRedirects limits a redirect chain.
	maxRedirects = 10
)

// DefaultBackoff is the delay ladder applied before each retry of a
// transient failure. The run makes one initial attempt plus one retry per
// ladder entry.
func DefaultBackoff() []time.Duration {
	return []time.Duration{
		30 * time.Second,
		60 * time.Second,
		180 * time.Second,
		300 * time.Second,
		600 * time.Second,
	}
}

// Request describes one JSON API call.
type Request struct {
	// URL is the absolute request URL.
	URL string

	// Params are query parameters appended to the URL.
	Params url.Values

	// Body, when non-nil, is JSON-encoded and sent as the request body.
	Body any

	// Method is the HTTP method; empty means GET.
	Method string
}

// Client issues typed JSON requests against node APIs with retry, backoff,
// and uniform error classification. All network calls funnel through the
// shared Limiter so retries also consume a limiter slot.
type Client struct {
	httpClient  *http.Client
	limiter     *Limiter
	logger      *slog.Logger
	userAgent   string
	timeout     time.Duration
	backoff     []time.Duration
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithBackoff replaces the retry delay ladder. An empty ladder disables
// retries entirely. Tests use this to avoid real backoff sleeps.
func WithBackoff(delays []time.Duration) Option {
	return func(c *Client) {
		c.backoff = delays
	}
}

// WithLogger sets the logger used for per-request trace output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMaxBodySize sets the maximum response body size to read.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// WithHTTPClient replaces the underlying http.Client. The redirect policy
// is reapplied to the provided client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a fetch client sharing the given limiter.
func NewClient(limiter *Limiter, opts ...Option) *Client {
	c := &Client{
		limiter:     limiter,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		backoff:     DefaultBackoff(),
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	// Reject redirect chains that leave HTTP(S) or run too long.
	c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return ErrInvalidRedirect
		}
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}

	return c
}

// FetchJSON performs the request and decodes the 200 response body into out.
// Transient failures (429, 5xx, timeouts, connection errors) are retried
// following the backoff ladder; every other failure is returned immediately,
// classified per the package error taxonomy.
func (c *Client) FetchJSON(ctx context.Context, req Request, out any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.do(ctx, req, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt >= len(c.backoff) {
			return lastErr
		}

		delay := c.backoff[attempt]
		c.logger.Debug("retrying after transient failure",
			"url", req.URL,
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// do performs a single attempt. The limiter slot is held from just before
// the request until the body has been consumed.
func (c *Client) do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return err
	}

	c.logger.Debug("fetching",
		"url", req.URL,
		"method", httpReq.Method,
		"params", req.Params.Encode(),
	)

	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer c.limiter.Release()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.httpClient.Do(httpReq.WithContext(reqCtx))
	if err != nil {
		return classifyTransportError(req.URL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the debug log, then classify.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // Best-effort diagnostics
		c.logger.Debug("non-200 response",
			"url", req.URL,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return &StatusError{Code: resp.StatusCode, URL: req.URL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return classifyTransportError(req.URL, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w on %s: %v", ErrDecode, req.URL, err)
	}
	return nil
}

// buildRequest assembles the http.Request for one attempt.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Params) > 0 {
		target = req.URL + "?" + req.Params.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("cannot encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("invalid request for %s: %w", req.URL, err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// classifyTransportError maps low-level transport failures onto the
// package taxonomy. Redirect policy errors surface here wrapped in
// *url.Error, so they are unwrapped before classification.
func classifyTransportError(requestURL string, err error) error {
	if errors.Is(err, ErrInvalidRedirect) {
		return fmt.Errorf("%w on %s", ErrInvalidRedirect, requestURL)
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return fmt.Errorf("%w on %s", ErrTooManyRedirects, requestURL)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, requestURL)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, requestURL)
	}
	return fmt.Errorf("request to %s failed: %w", requestURL, err)
}

// retryable reports whether an error from do is worth retrying.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	return errors.Is(err, ErrTimeout)
}
