package mocks

import (
	"context"

	"opsbot/internal/agent/ports"
)

type MockToolExecutor struct {
	ExecuteFunc func(ctx context.Context, call ports.ToolCall) (any, error)
}

func (m *MockToolExecutor) Execute(ctx context.Context, call ports.ToolCall) (any, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, call)
	}
	return map[string]any{"tool": call.Name, "ok": true}, nil
}

type MockToolSource struct {
	DiscoverFunc func(ctx context.Context) ([]ports.Tool, error)
}

func (m *MockToolSource) Discover(ctx context.Context) ([]ports.Tool, error) {
	if m.DiscoverFunc != nil {
		return m.DiscoverFunc(ctx)
	}
	return nil, nil
}

type MockCallObserver struct {
	ObserveCallFunc func(ctx context.Context, result ports.ToolResult)
}

func (m *MockCallObserver) ObserveCall(ctx context.Context, result ports.ToolResult) {
	if m.ObserveCallFunc != nil {
		m.ObserveCallFunc(ctx, result)
	}
}
