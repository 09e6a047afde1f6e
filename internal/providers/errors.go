package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUpstreamUnavailable covers 5xx, 529 overloaded and transport failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamTimeout is returned when a call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrAuth is returned on HTTP 401 and 403. It is never retried.
	ErrAuth = errors.New("authentication error")
	// ErrInvalidResponse is returned when a 200 reply carries no usable text.
	// It is retryable.
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// StatusError is a non-200 reply. It unwraps to one of the sentinels above
// when the status maps to a class.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	class      error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("API error (status %d)", e.StatusCode)
	if e.class != nil {
		msg = e.class.Error() + ": " + msg
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.class }

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool { return errors.Is(err, ErrAuth) }

// IsRetryable reports whether a later attempt could succeed.
func IsRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, ErrAuth), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrUpstreamTimeout):
		return true
	case errors.Is(err, ErrInvalidResponse):
		return true
	}
	return false
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

const maxErrorBody = 512

// statusError classifies a non-200 reply.
func statusError(resp *http.Response, body []byte) error {
	e := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if len(e.Body) > maxErrorBody {
		e.Body = e.Body[:maxErrorBody]
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.class = ErrRateLimited
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		e.class = ErrAuth
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusGatewayTimeout:
		e.class = ErrUpstreamTimeout
	case resp.StatusCode == 529, resp.StatusCode >= 500:
		e.class = ErrUpstreamUnavailable
	}
	return e
}

// transportError classifies a failure to get any reply. Cancellation by the
// caller is returned as is so it is not mistaken for an upstream fault.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
