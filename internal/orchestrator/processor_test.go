package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"opsbot/internal/agent/ports"
	"opsbot/internal/agent/ports/mocks"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
	"opsbot/internal/toolclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTools() []ports.Tool {
	return []ports.Tool{
		{
			Name:        "list-items",
			Description: "List items in a namespace",
			InputSchema: ports.ParameterSchema{
				Type:       "object",
				Properties: map[string]ports.Property{"namespace": {Type: "string"}},
			},
		},
		{
			Name:        "get-logs",
			Description: "Fetch logs",
			InputSchema: ports.ParameterSchema{
				Type:       "object",
				Properties: map[string]ports.Property{"pod_name": {Type: "string"}},
				Required:   []string{"pod_name"},
			},
		},
	}
}

func newToolClient(t *testing.T, exec ports.ToolExecutor, connect bool) *toolclient.Client {
	t.Helper()
	client := toolclient.New(toolclient.StaticSource(testTools()), exec, toolclient.Options{
		Timeout:            time.Second,
		RetryAttempts:      1,
		MaxConcurrentCalls: 2,
		CacheTimeout:       time.Minute,
	}, toolclient.WithLogger(logging.Nop()))
	if connect {
		require.NoError(t, client.Connect(context.Background()))
	}
	return client
}

// scriptedLLM replays one response per model call and records the requests.
type scriptedLLM struct {
	responses []*ports.CompletionResponse
	requests  []ports.CompletionRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.responses) {
		return nil, errors.New("unexpected model call")
	}
	return s.responses[len(s.requests)-1], nil
}

func (s *scriptedLLM) Model() string { return "scripted" }

func userTurn(content string) []ports.Message {
	return []ports.Message{{Role: ports.RoleUser, Content: content}}
}

func TestChatWithoutToolCallsSkipsSecondPhase(t *testing.T) {
	var executed atomic.Int32
	exec := &mocks.MockToolExecutor{ExecuteFunc: func(context.Context, ports.ToolCall) (any, error) {
		executed.Add(1)
		return nil, nil
	}}
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{Content: "Hello there", Usage: ports.TokenUsage{TotalTokens: 12}},
	}}
	p := New(llm, newToolClient(t, exec, true), DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("hi"), true)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", result.Content)
	assert.Empty(t, result.FunctionCalls)
	assert.Equal(t, 12, result.Usage.TotalTokens)
	require.Len(t, llm.requests, 1)
	assert.Len(t, llm.requests[0].Tools, 2)
	assert.Zero(t, executed.Load())
}

func TestChatUnknownToolStillSynthesizes(t *testing.T) {
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{ToolCalls: []ports.ProposedCall{{ID: "call_1", Name: "delete-cluster", Arguments: "{}"}}},
		{Content: "That tool does not exist."},
	}}
	p := New(llm, newToolClient(t, &mocks.MockToolExecutor{}, true), DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("delete everything"), true)
	require.NoError(t, err)

	require.Len(t, result.FunctionCalls, 1)
	call := result.FunctionCalls[0]
	assert.False(t, call.Success)
	require.NotNil(t, call.Error)
	assert.Equal(t, apperrors.CodeToolNotFound, call.Error.Code)

	require.Len(t, llm.requests, 2)
	final := llm.requests[1]
	assert.Empty(t, final.Tools)
	require.Len(t, final.Messages, 3)
	assert.Equal(t, ports.RoleAssistant, final.Messages[1].Role)
	assert.Equal(t, "delete-cluster", final.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, ports.RoleTool, final.Messages[2].Role)
	assert.Equal(t, "call_1", final.Messages[2].ToolCallID)
	assert.Contains(t, final.Messages[2].Content, "TOOL_NOT_FOUND")

	assert.True(t, strings.HasPrefix(result.Content, "That tool does not exist."))
	assert.Contains(t, result.Content, "**1. delete-cluster**")
	assert.Contains(t, result.Content, "❌ Failed:")
}

func TestChatEchoesCallsWithUnusualNames(t *testing.T) {
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{ToolCalls: []ports.ProposedCall{
			{ID: "call_1", Name: "k8s.delete_pod", Arguments: `{"pod_name":"web-1"}`},
			{ID: "call_2", Name: "list-items", Arguments: `{}`},
		}},
		{Content: "I cannot delete pods."},
	}}
	p := New(llm, newToolClient(t, &mocks.MockToolExecutor{}, true), DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("delete web-1"), true)
	require.NoError(t, err)
	require.Len(t, result.FunctionCalls, 2)
	assert.Equal(t, apperrors.CodeToolNotFound, result.FunctionCalls[0].Error.Code)
	assert.True(t, result.FunctionCalls[1].Success)

	require.Len(t, llm.requests, 2)
	history := llm.requests[1].Messages
	require.Len(t, history, 5)

	// Every tool turn answers the assistant turn directly before it.
	for i := 1; i < len(history); i += 2 {
		assistant, tool := history[i], history[i+1]
		require.Equal(t, ports.RoleAssistant, assistant.Role)
		require.Len(t, assistant.ToolCalls, 1)
		require.Equal(t, ports.RoleTool, tool.Role)
		assert.Equal(t, assistant.ToolCalls[0].ID, tool.ToolCallID)
	}
	assert.Equal(t, "k8s.delete_pod", history[1].ToolCalls[0].Name)
	assert.Equal(t, `{"pod_name":"web-1"}`, history[1].ToolCalls[0].Arguments)
	assert.True(t, strings.HasPrefix(result.Content, "I cannot delete pods."))
}

func TestChatArgumentParseFailureIsPerCall(t *testing.T) {
	var seen []ports.ToolCall
	exec := &mocks.MockToolExecutor{ExecuteFunc: func(_ context.Context, call ports.ToolCall) (any, error) {
		seen = append(seen, call)
		return map[string]any{"items": []any{"a", "b"}}, nil
	}}
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{ToolCalls: []ports.ProposedCall{
			{ID: "call_1", Name: "list-items", Arguments: "{not json"},
			{ID: "call_2", Name: "list-items", Arguments: `{"namespace":"prod"}`},
		}, Usage: ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		{Content: "Found two items.", Usage: ports.TokenUsage{PromptTokens: 20, CompletionTokens: 4, TotalTokens: 24}},
	}}
	p := New(llm, newToolClient(t, exec, true), DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("list items"), true)
	require.NoError(t, err)

	require.Len(t, result.FunctionCalls, 2)
	assert.Equal(t, apperrors.CodeArgumentParseFailed, result.FunctionCalls[0].Error.Code)
	assert.Equal(t, "{not json", result.FunctionCalls[0].RawArguments)
	assert.True(t, result.FunctionCalls[1].Success)
	assert.Equal(t, "prod", result.FunctionCalls[1].Arguments["namespace"])

	require.Len(t, seen, 1)
	assert.Equal(t, "call_2", seen[0].ID)
	assert.Contains(t, result.Content, "📊 Returned 2 items")
	assert.Equal(t, ports.TokenUsage{PromptTokens: 30, CompletionTokens: 9, TotalTokens: 39}, result.Usage)

	// Both calls are echoed into the synthesis history.
	assert.Len(t, llm.requests[1].Messages, 5)
}

func TestChatRepairsArgumentsWhenEnabled(t *testing.T) {
	var namespace any
	exec := &mocks.MockToolExecutor{ExecuteFunc: func(_ context.Context, call ports.ToolCall) (any, error) {
		namespace = call.Parameters["namespace"]
		return "ok", nil
	}}
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{ToolCalls: []ports.ProposedCall{{ID: "call_1", Name: "list-items", Arguments: `{"namespace": "prod"`}}},
		{Content: "done"},
	}}
	config := DefaultConfig()
	config.RepairArguments = true
	p := New(llm, newToolClient(t, exec, true), config, WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("list items"), true)
	require.NoError(t, err)
	require.Len(t, result.FunctionCalls, 1)
	assert.True(t, result.FunctionCalls[0].Success)
	assert.Equal(t, "prod", namespace)
}

func TestChatEmptyArgumentsMeanNoParameters(t *testing.T) {
	llm := &scriptedLLM{responses: []*ports.CompletionResponse{
		{ToolCalls: []ports.ProposedCall{{ID: "call_1", Name: "list-items", Arguments: ""}}},
		{Content: ""},
	}}
	p := New(llm, newToolClient(t, &mocks.MockToolExecutor{}, true), DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("list"), true)
	require.NoError(t, err)
	require.True(t, result.FunctionCalls[0].Success)
	assert.Empty(t, result.FunctionCalls[0].Arguments)
	assert.True(t, strings.HasPrefix(result.Content, "Execution completed"))
}

func TestChatOmitsToolsWhenDisabledOrDisconnected(t *testing.T) {
	cases := []struct {
		name        string
		connect     bool
		enableTools bool
	}{
		{name: "disabled", connect: true, enableTools: false},
		{name: "disconnected", connect: false, enableTools: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &scriptedLLM{responses: []*ports.CompletionResponse{{Content: "plain"}}}
			p := New(llm, newToolClient(t, &mocks.MockToolExecutor{}, tc.connect), DefaultConfig(), WithLogger(logging.Nop()))

			result, err := p.Chat(context.Background(), userTurn("hi"), tc.enableTools)
			require.NoError(t, err)
			assert.Equal(t, "plain", result.Content)
			require.Len(t, llm.requests, 1)
			assert.Empty(t, llm.requests[0].Tools)
		})
	}
}

func TestChatWithoutToolClient(t *testing.T) {
	llm := &mocks.MockLLMClient{}
	p := New(llm, nil, DefaultConfig(), WithLogger(logging.Nop()))

	result, err := p.Chat(context.Background(), userTurn("hi"), true)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 15, result.Usage.TotalTokens)
	requests := llm.Requests()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Tools)
}

func TestChatWrapsModelFailure(t *testing.T) {
	llm := &mocks.MockLLMClient{CompleteFunc: func(context.Context, ports.CompletionRequest) (*ports.CompletionResponse, error) {
		return nil, errors.New("upstream exploded")
	}}
	p := New(llm, nil, DefaultConfig(), WithLogger(logging.Nop()))

	_, err := p.Chat(context.Background(), userTurn("hi"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLLMProcessingFailed)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestChatPassesSamplingSettings(t *testing.T) {
	var got ports.CompletionRequest
	llm := &mocks.MockLLMClient{CompleteFunc: func(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		got = req
		return &ports.CompletionResponse{Content: "ok"}, nil
	}}
	p := New(llm, nil, Config{Temperature: 0.2, MaxTokens: 64}, WithLogger(logging.Nop()))

	_, err := p.Chat(context.Background(), userTurn("hi"), false)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, DefaultMaxOutputLength, p.Config().MaxOutputLength)
}
