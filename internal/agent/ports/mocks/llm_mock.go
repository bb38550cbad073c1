// Package mocks holds hand-written doubles for the ports interfaces.
package mocks

import (
	"context"
	"sync"

	"opsbot/internal/agent/ports"
)

// MockLLMClient answers with CompleteFunc, or a fixed one-line reply when
// it is nil. Every request is kept for later inspection.
type MockLLMClient struct {
	CompleteFunc func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error)
	ModelName    string

	mu       sync.Mutex
	requests []ports.CompletionRequest
}

func (m *MockLLMClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &ports.CompletionResponse{
		Content:    "ok",
		StopReason: "stop",
		Usage:      ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (m *MockLLMClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Requests returns a copy of every request seen so far.
func (m *MockLLMClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}
