package llm

import (
	"context"
	"fmt"
	"strings"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
)

// NewClient builds the configured provider and layers retries and rate
// limiting on top of it.
func NewClient(ctx context.Context, config Config) (ports.LLMClient, error) {
	var (
		client ports.LLMClient
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case ProviderOpenAI, "":
		client, err = NewOpenAIClient(config.Model, config)
	case ProviderGemini:
		client, err = NewGeminiClient(ctx, config.Model, config)
	case ProviderMock:
		return NewMockClient(config.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	if config.MaxRetries > 0 {
		retry := apperrors.DefaultRetryConfig()
		retry.MaxAttempts = config.MaxRetries
		if config.RetryBaseDelay > 0 {
			retry.BaseDelay = config.RetryBaseDelay
		}
		client = WrapWithRetry(client, retry, apperrors.DefaultCircuitBreakerConfig())
	}
	return WrapWithRateLimit(client, config.RequestsPerMinute), nil
}
