package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
)

// retryClient wraps an LLM client with retry logic and circuit breaker
type retryClient struct {
	underlying     ports.LLMClient
	retryConfig    apperrors.RetryConfig
	circuitBreaker *apperrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps an LLM client with retry and circuit breaker logic
func NewRetryClient(client ports.LLMClient, retryConfig apperrors.RetryConfig, circuitBreaker *apperrors.CircuitBreaker) ports.LLMClient {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// WrapWithRetry wraps client with retries and a breaker named after its model.
func WrapWithRetry(client ports.LLMClient, retryConfig apperrors.RetryConfig, breakerConfig apperrors.CircuitBreakerConfig) ports.LLMClient {
	breaker := apperrors.NewCircuitBreaker(fmt.Sprintf("llm-%s", client.Model()), breakerConfig)
	return NewRetryClient(client, retryConfig, breaker)
}

// Complete executes LLM completion with retry logic
func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	startTime := time.Now()

	resp, err := apperrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return apperrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*ports.CompletionResponse, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classifyLLMError(err)
			}
			return response, nil
		})
	}, c.logger)

	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		return nil, err
	}
	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}
	return resp, nil
}

// Model returns the underlying model name
func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// classifyLLMError tags provider failures as transient or permanent so the
// retry loop only repeats the ones worth repeating.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr *apperrors.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return apperrors.NewTransientError(err, "API rate limit reached. Retrying with exponential backoff.")
		case code >= 500:
			return apperrors.NewTransientError(err, fmt.Sprintf("Server error (%d). Retrying request.", code))
		case code == http.StatusUnauthorized:
			return apperrors.NewPermanentError(err, "Authentication failed. Please check your API key configuration.")
		case code == http.StatusForbidden:
			return apperrors.NewPermanentError(err, "Permission denied. You don't have access to this model or resource.")
		case code == http.StatusNotFound:
			return apperrors.NewPermanentError(err, "Model or endpoint not found. Please verify the model name.")
		default:
			return apperrors.NewPermanentError(err, "Invalid request. Please check the parameters.")
		}
	}

	lowerErr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErr, "connection refused"),
		strings.Contains(lowerErr, "connection reset"),
		strings.Contains(lowerErr, "broken pipe"):
		return apperrors.NewTransientError(err, "Connection to the model provider failed. Retrying request.")
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return apperrors.NewTransientError(err, "Request timed out. Retrying with backoff.")
	}
	return err
}
