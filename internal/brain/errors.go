package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrUnavailable means the backend could not produce a response:
	// no provider, no credentials, retries exhausted or a hard failure.
	ErrUnavailable = errors.New("generative backend unavailable")

	// ErrRateLimited marks a transient quota or throughput rejection.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrUnretryable marks a failure that retrying cannot fix.
	ErrUnretryable = errors.New("backend request failed")
)

// maxRetryAfter caps a server-requested wait.
const maxRetryAfter = 60 * time.Second

// StatusError is returned by HTTP providers for non-200 responses.
// RetryAfter is the server's Retry-After hint on 429, zero when absent.
type StatusError struct {
	Provider   string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.Code, truncate(e.Body, 200))
}

// Unwrap maps 429 onto ErrRateLimited so errors.Is works across providers.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// retryable reports whether err belongs to the rate-limit class. parent is
// the caller's context: a deadline on the attempt context while parent is
// still alive is an attempt timeout and counts as retryable. Errors that
// carry a status code are classified by the code alone.
func retryable(parent context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED"
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

// retryAfter returns the server-requested wait carried by err, or zero.
func retryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates
// and non-positive values are ignored; long waits are capped.
func parseRetryAfter(h string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
