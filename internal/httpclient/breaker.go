package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
)

// NewWithCircuitBreaker is New plus a transport that stops calling the named
// upstream while it keeps failing with transport errors, 5xx or 429.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string, config apperrors.CircuitBreakerConfig) *http.Client {
	client := New(timeout, logger)
	client.Transport = &breakerTransport{
		next:    client.Transport,
		breaker: apperrors.NewCircuitBreaker(name, config),
	}
	return client
}

type breakerTransport struct {
	next    http.RoundTripper
	breaker *apperrors.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	switch {
	case errors.Is(err, context.Canceled):
		// The caller gave up; that says nothing about the upstream.
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		t.breaker.Mark(fmt.Errorf("upstream status %d", resp.StatusCode))
	default:
		t.breaker.Mark(nil)
	}
	return resp, err
}
