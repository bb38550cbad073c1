package llm

import (
	"context"
	"fmt"
	"time"

	"opsbot/internal/agent/ports"

	"golang.org/x/time/rate"
)

// rateLimitedClient spaces model calls to a requests-per-minute budget.
type rateLimitedClient struct {
	base    ports.LLMClient
	limiter *rate.Limiter
}

// WrapWithRateLimit returns client unchanged for a non-positive budget.
// Otherwise callers wait for a token, honouring ctx cancellation.
func WrapWithRateLimit(client ports.LLMClient, requestsPerMinute int) ports.LLMClient {
	if requestsPerMinute <= 0 {
		return client
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedClient{
		base:    client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
	}
}

func (c *rateLimitedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit: %w", err)
	}
	return c.base.Complete(ctx, req)
}

func (c *rateLimitedClient) Model() string {
	return c.base.Model()
}
