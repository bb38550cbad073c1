package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestToolErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", ToolNotFound("k8s-get-pods"))

	assert.True(t, errors.Is(err, ErrToolNotFound))
	assert.False(t, errors.Is(err, ErrInvalidParameters))
	assert.Equal(t, CodeToolNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), `tool "k8s-get-pods" not found`)
}

func TestMissingParameterNamesField(t *testing.T) {
	err := MissingParameter("k8s-get-logs", "pod_name")
	assert.True(t, errors.Is(err, ErrInvalidParameters))
	assert.Equal(t, "missing required parameter: pod_name", err.Message)
}

func TestNewToolErrorKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewToolError(CodeExecutionFailed, "tool", "tool execution failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Details)
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), "")))
	assert.False(t, IsTransient(NewPermanentError(errors.New("x"), "")))
	assert.True(t, IsTransient(&HTTPStatusError{StatusCode: 503}))
	assert.False(t, IsTransient(&HTTPStatusError{StatusCode: 400}))
	assert.False(t, IsTransient(ToolNotFound("x")))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsPermanent(errors.New("unauthorized request")))
}

func TestRetryWithResultRetriesTransientErrors(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewTransientError(errors.New("flaky"), "")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithResultStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("invalid input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithResultExhausts(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetry(2), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewTransientError(errors.New("down"), "")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastRetry(3), func(ctx context.Context) error {
		t.Fatalf("function should not run with a cancelled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	failing := func(ctx context.Context) error { return errors.New("down") }
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)
	require.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.True(t, IsDegraded(err))

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}
