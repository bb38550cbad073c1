package llm

import (
	"context"
	"fmt"
	"strings"

	"opsbot/internal/agent/ports"
)

// mockClient is an offline provider for local runs without credentials. It
// proposes a tool whose name keyword appears in the latest user turn, and
// summarises tool turns once they are present.
type mockClient struct {
	model string
}

// NewMockClient returns the offline provider.
func NewMockClient(model string) ports.LLMClient {
	if model == "" {
		model = "mock"
	}
	return &mockClient{model: model}
}

func (m *mockClient) Model() string {
	return m.model
}

func (m *mockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	usage := ports.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}

	toolTurns := 0
	var lastUser string
	for _, msg := range req.Messages {
		switch msg.Role {
		case ports.RoleTool:
			toolTurns++
		case ports.RoleUser:
			lastUser = msg.Content
		}
	}

	if toolTurns > 0 {
		return &ports.CompletionResponse{
			Content:    fmt.Sprintf("I ran %d tool call(s); the details are listed below.", toolTurns),
			StopReason: "stop",
			Usage:      usage,
		}, nil
	}

	if tool, ok := matchTool(lastUser, req.Tools); ok {
		return &ports.CompletionResponse{
			ToolCalls: []ports.ProposedCall{{
				ID:        "call_mock_0",
				Name:      tool.Name,
				Arguments: "{}",
			}},
			StopReason: "tool_calls",
			Usage:      usage,
		}, nil
	}

	return &ports.CompletionResponse{
		Content:    "This is a mock response. No model provider was called.",
		StopReason: "stop",
		Usage:      usage,
	}, nil
}

// matchTool picks the first tool, in declaration order, whose last name
// segment appears in text and which needs no parameters.
func matchTool(text string, tools []ports.ToolDefinition) (ports.ToolDefinition, bool) {
	text = strings.ToLower(text)
	for _, tool := range tools {
		if len(tool.Parameters.Required) > 0 {
			continue
		}
		segments := strings.Split(tool.Name, "-")
		keyword := strings.TrimSuffix(segments[len(segments)-1], "s")
		if keyword != "" && strings.Contains(text, keyword) {
			return tool, true
		}
	}
	return ports.ToolDefinition{}, false
}
