package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientCompleteSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Path; got != "/chat/completions" {
			t.Fatalf("unexpected path: %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("expected Authorization header, got %q", got)
		}
		if got := r.Header.Get("X-Custom"); got != "value" {
			t.Fatalf("expected custom header, got %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["model"] != "test-model" {
			t.Fatalf("unexpected model: %v", payload["model"])
		}
		if payload["tool_choice"] != "auto" {
			t.Fatalf("expected tool_choice auto, got %v", payload["tool_choice"])
		}
		tools := payload["tools"].([]any)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		if fn["name"] != "k8s-get-pods" {
			t.Fatalf("unexpected tool: %v", fn["name"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"id":   "call-1",
								"type": "function",
								"function": map[string]any{
									"name":      "k8s-get-pods",
									"arguments": `{"namespace":"prod"`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-model", Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Custom": "value"},
	})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "list pods"}},
		Tools:    []ports.ToolDefinition{{Name: "k8s-get-pods", Description: "List pods"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.StopReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	require.Len(t, resp.ToolCalls, 1)
	// Malformed arguments are passed through untouched.
	assert.Equal(t, `{"namespace":"prod"`, resp.ToolCalls[0].Arguments)
}

func TestOpenAIClientOmitsToolsWhenNoneGiven(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if _, ok := payload["tools"]; ok {
			t.Fatalf("tools must be omitted: %v", payload["tools"])
		}
		if _, ok := payload["tool_choice"]; ok {
			t.Fatal("tool_choice must be omitted")
		}
		msgs := payload["messages"].([]any)
		tool := msgs[2].(map[string]any)
		if tool["tool_call_id"] != "call-1" {
			t.Fatalf("expected tool_call_id, got %v", tool)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-model", Config{BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: ports.RoleUser, Content: "hi"},
			{Role: ports.RoleAssistant, ToolCalls: []ports.ProposedCall{{ID: "call-1", Name: "k8s-get-pods", Arguments: ""}}},
			{Role: ports.RoleTool, ToolCallID: "call-1", Content: `{"items":[]}`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
}

func TestOpenAIClientMapsHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-model", Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), ports.CompletionRequest{})
	var statusErr *apperrors.HTTPStatusError
	require.True(t, errors.As(err, &statusErr), "expected HTTPStatusError, got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, apperrors.IsTransient(err))
}

func TestOpenAIClientEmptyChoicesIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-model", Config{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), ports.CompletionRequest{})
	assert.True(t, apperrors.IsTransient(err))
}

func TestNewOpenAIClientRequiresModel(t *testing.T) {
	_, err := NewOpenAIClient(" ", Config{})
	assert.Error(t, err)
}

func TestOpenAIClientSendsZeroTemperature(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		bodies <- payload
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-model", Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), ports.CompletionRequest{
		Messages:    []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
		Temperature: 0,
	})
	require.NoError(t, err)

	payload := <-bodies
	temp, ok := payload["temperature"]
	require.True(t, ok, "temperature must be sent even when zero")
	assert.EqualValues(t, 0, temp)
}
