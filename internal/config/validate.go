package config

import (
	"errors"
	"fmt"
	"strings"

	"opsbot/internal/llm"
)

// minOutputLength leaves room for the 100-character truncation margin.
const minOutputLength = 200

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderGemini, llm.ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	check(strings.TrimSpace(c.LLM.Model) != "" || c.LLM.Provider == llm.ProviderMock, "llm.model: must not be empty")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature: must be within [0, 2], got %v", c.LLM.Temperature)
	check(c.LLM.MaxTokens > 0, "llm.max_tokens: must be positive, got %d", c.LLM.MaxTokens)
	check(c.LLM.TimeoutMs > 0, "llm.timeout: must be positive, got %d", c.LLM.TimeoutMs)
	check(c.LLM.MaxRetries >= 0, "llm.max_retries: must not be negative, got %d", c.LLM.MaxRetries)
	check(c.LLM.RequestsPerMinute >= 0, "llm.requests_per_minute: must not be negative, got %d", c.LLM.RequestsPerMinute)

	check(c.Client.Timeout > 0, "client.timeout: must be positive, got %d", c.Client.Timeout)
	check(c.Client.RetryAttempts > 0, "client.retry_attempts: must be positive, got %d", c.Client.RetryAttempts)
	check(c.Client.RetryDelay >= 0, "client.retry_delay: must not be negative, got %d", c.Client.RetryDelay)
	check(c.Client.MaxConcurrentCalls > 0, "client.max_concurrent_calls: must be positive, got %d", c.Client.MaxConcurrentCalls)
	check(c.Client.CacheTimeout > 0, "client.cache_timeout: must be positive, got %d", c.Client.CacheTimeout)
	check(c.Client.CacheMaxEntries > 0, "client.cache_max_entries: must be positive, got %d", c.Client.CacheMaxEntries)

	check(c.Orchestrator.MaxOutputLength >= minOutputLength,
		"orchestrator.max_output_length: must be at least %d, got %d", minOutputLength, c.Orchestrator.MaxOutputLength)

	check(strings.TrimSpace(c.Server.Addr) != "", "server.addr: must not be empty")
	check(!c.History.Enabled || strings.TrimSpace(c.History.DSN) != "", "history.dsn: required when history is enabled")

	return errors.Join(errs...)
}
