package llm

import (
	"context"
	"testing"

	"opsbot/internal/agent/ports"
	"opsbot/internal/agent/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapWithRateLimitDisabled(t *testing.T) {
	mock := &mocks.MockLLMClient{}
	assert.Same(t, ports.LLMClient(mock), WrapWithRateLimit(mock, 0))
}

func TestRateLimitedClientWaitsForToken(t *testing.T) {
	client := WrapWithRateLimit(&mocks.MockLLMClient{}, 1)

	_, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)

	// The single token is spent; a cancelled context cannot wait for the next.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Complete(ctx, ports.CompletionRequest{})
	assert.Error(t, err)
	assert.Equal(t, "mock-model", client.Model())
}
