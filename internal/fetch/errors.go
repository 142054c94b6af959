package fetch

import (
	"errors"
	"fmt"
)

// Fetch error taxonomy.
//
// Design decision: We use sentinel errors plus one typed error (StatusError)
// rather than a single error kind enum. Callers almost always want errors.Is
// checks ("was this a timeout?"), and only the HTTP status case carries data
// worth inspecting programmatically.
var (
	// ErrTimeout is returned when a request exceeds the per-request timeout
	// or the underlying connection times out.
	ErrTimeout = errors.New("request timed out")

	// ErrDecode is returned when a 200 response body is not valid JSON for
	// the expected shape. Decode failures are never retried: the node is
	// answering, just not with what the API promises.
	ErrDecode = errors.New("cannot decode JSON response")

	// ErrInvalidRedirect is returned when a node redirects to a non-HTTP(S)
	// scheme. Such redirects are rejected outright to avoid SSRF-style
	// redirection, and never retried.
	ErrInvalidRedirect = errors.New("invalid redirect")

	// ErrTooManyRedirects is returned when a redirect chain exceeds the
	// redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// StatusError is returned when a request ends with a non-200 status after
// all retries are exhausted.
type StatusError struct {
	// Code is the final HTTP status code.
	Code int

	// URL is the request URL that produced the status.
	URL string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("error code %d on %s", e.Code, e.URL)
}

// retryableStatus reports whether a status code should be retried.
// 429 signals rate limiting and all 5xx are treated as transient; any
// other 4xx is the node's definitive answer.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
