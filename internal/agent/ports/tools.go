package ports

import (
	"context"
	"time"

	apperrors "opsbot/internal/errors"
)

// ConnectionState is the lifecycle state of a tool client.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// Tool describes a named, schema-described capability exposed by a tool source.
type Tool struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	InputSchema ParameterSchema `json:"input_schema" yaml:"input_schema"`
	Category    string          `json:"category,omitempty" yaml:"category,omitempty"`
	Version     string          `json:"version,omitempty" yaml:"version,omitempty"`
	Provider    string          `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// Definition renders the tool the way it is advertised to a model.
func (t Tool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.InputSchema,
	}
}

// ParameterSchema is the JSON-Schema-like object describing tool parameters.
type ParameterSchema struct {
	Type       string              `json:"type" yaml:"type"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
	Required   []string            `json:"required,omitempty" yaml:"required,omitempty"`
}

// Property describes a single parameter.
type Property struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// ToolCall is one request to execute a tool with concrete parameters.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Context    map[string]any `json:"context,omitempty"`
}

// ToolResult is the immutable outcome of a dispatched call. Exactly one of
// Result and Error is set.
type ToolResult struct {
	ID            string               `json:"id"`
	ToolName      string               `json:"tool_name"`
	Success       bool                 `json:"success"`
	Result        any                  `json:"result,omitempty"`
	Error         *apperrors.ToolError `json:"error,omitempty"`
	ExecutionTime float64              `json:"execution_time"`
	Timestamp     time.Time            `json:"timestamp"`
	Cached        bool                 `json:"cached,omitempty"`
}

// ToolExecutor runs a tool. Implementations should honour ctx cancellation
// where they can; callers enforce deadlines regardless.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) (any, error)
}

// ToolSource discovers the tool catalog during connect.
type ToolSource interface {
	Discover(ctx context.Context) ([]Tool, error)
}

// CallObserver is notified after every completed dispatch, cache hits included.
type CallObserver interface {
	ObserveCall(ctx context.Context, result ToolResult)
}
