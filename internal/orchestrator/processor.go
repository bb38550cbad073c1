package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
	"opsbot/internal/observability"
	jsonx "opsbot/internal/shared/json"
	"opsbot/internal/toolclient"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/trace"
)

// Chat turn outcomes reported to metrics.
const (
	OutcomeDirect          = "direct"
	OutcomeTools           = "tools"
	OutcomeShortcutUnknown = "shortcut_unknown"
	OutcomeError           = "error"
)

// ToolClient is the part of the tool client the orchestrator drives.
type ToolClient interface {
	State() ports.ConnectionState
	ListTools(ctx context.Context) ([]ports.Tool, error)
	CallTool(ctx context.Context, name string, params map[string]any, opts ...toolclient.CallOption) (any, error)
}

// Config tunes model calls and output shaping.
type Config struct {
	Temperature     float64
	MaxTokens       int
	MaxOutputLength int
	// RepairArguments retries malformed tool-call arguments through a JSON
	// repair pass before reporting a parse failure.
	RepairArguments bool
}

// DefaultConfig mirrors the shipped defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:     0.7,
		MaxTokens:       2000,
		MaxOutputLength: DefaultMaxOutputLength,
	}
}

// FunctionCallResult records the outcome of one model-proposed tool call.
type FunctionCallResult struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Arguments    map[string]any       `json:"arguments,omitempty"`
	RawArguments string               `json:"raw_arguments,omitempty"`
	Success      bool                 `json:"success"`
	Result       any                  `json:"result,omitempty"`
	Error        *apperrors.ToolError `json:"error,omitempty"`
}

// ProcessResult is the final answer of a conversation turn.
type ProcessResult struct {
	Content       string               `json:"content"`
	FunctionCalls []FunctionCallResult `json:"function_calls"`
	Usage         ports.TokenUsage     `json:"usage"`
}

// Processor runs the two-phase model and tool conversation.
type Processor struct {
	llm     ports.LLMClient
	tools   ToolClient
	config  Config
	logger  logging.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Processor) { p.logger = logging.OrNop(logger) }
}

// WithTracer sets the tracer for chat spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMetrics records chat turn outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New builds a Processor. tools may be nil, in which case every turn is a
// plain model call.
func New(llm ports.LLMClient, tools ToolClient, config Config, opts ...Option) *Processor {
	if config.MaxOutputLength <= 0 {
		config.MaxOutputLength = DefaultMaxOutputLength
	}
	p := &Processor{
		llm:    llm,
		tools:  tools,
		config: config,
		logger: logging.NewComponentLogger("orchestrator"),
		tracer: observability.NoopTracerProvider().Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the processor settings.
func (p *Processor) Config() Config {
	return p.config
}

// Chat answers the conversation. With tools enabled and a connected,
// non-empty catalog the model may propose tool calls; those run one by one
// and a second tool-free model call summarises their results.
func (p *Processor) Chat(ctx context.Context, messages []ports.Message, enableTools bool) (result *ProcessResult, err error) {
	ctx, span := p.tracer.Start(ctx, observability.SpanChat,
		trace.WithAttributes(observability.AttrLLMModel.String(p.llm.Model())))
	defer func() {
		observability.EndSpan(span, err)
		if err != nil {
			p.metrics.RecordChatTurn(OutcomeError)
		}
	}()

	defs := p.toolDefinitions(ctx, enableTools)
	first, err := p.complete(ctx, messages, defs)
	if err != nil {
		return nil, err
	}
	if len(first.ToolCalls) == 0 {
		p.metrics.RecordChatTurn(OutcomeDirect)
		return &ProcessResult{Content: first.Content, Usage: first.Usage}, nil
	}

	history := make([]ports.Message, len(messages), len(messages)+2*len(first.ToolCalls))
	copy(history, messages)
	calls := make([]FunctionCallResult, 0, len(first.ToolCalls))
	for _, proposed := range first.ToolCalls {
		outcome := p.runCall(ctx, proposed)
		calls = append(calls, outcome)
		history = append(history,
			ports.Message{Role: ports.RoleAssistant, ToolCalls: []ports.ProposedCall{proposed}},
			ports.Message{Role: ports.RoleTool, ToolCallID: proposed.ID, Content: toolTurnContent(outcome)},
		)
	}
	p.logger.Info("Executed %d tool call(s), requesting final answer", len(calls))

	final, err := p.complete(ctx, history, nil)
	if err != nil {
		return nil, err
	}
	content := final.Content
	if strings.TrimSpace(content) == "" {
		content = "Execution completed"
	}
	p.metrics.RecordChatTurn(OutcomeTools)
	return &ProcessResult{
		Content:       FormatResponseWithTools(content, calls),
		FunctionCalls: calls,
		Usage:         first.Usage.Add(final.Usage),
	}, nil
}

// toolDefinitions returns nil unless tools are enabled and the catalog is
// usable.
func (p *Processor) toolDefinitions(ctx context.Context, enableTools bool) []ports.ToolDefinition {
	if !enableTools || p.tools == nil || p.tools.State() != ports.StateConnected {
		return nil
	}
	tools, err := p.tools.ListTools(ctx)
	if err != nil {
		p.logger.Warn("Listing tools failed, continuing without tools: %v", err)
		return nil
	}
	defs := make([]ports.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

func (p *Processor) complete(ctx context.Context, messages []ports.Message, tools []ports.ToolDefinition) (*ports.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.llm.Complete(ctx, ports.CompletionRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	})
	if err != nil {
		p.logger.Error("Model call failed after %v: %v", time.Since(start), err)
		return nil, apperrors.NewToolError(apperrors.CodeLLMProcessingFailed, "",
			"LLM processing failed: "+apperrors.FormatForUser(err), err)
	}
	if resp == nil {
		return nil, apperrors.NewToolError(apperrors.CodeLLMProcessingFailed, "",
			"LLM processing failed", errors.New("empty completion"))
	}
	return resp, nil
}

// runCall parses and executes one proposed call. Every failure stays local to
// the call.
func (p *Processor) runCall(ctx context.Context, proposed ports.ProposedCall) FunctionCallResult {
	outcome := FunctionCallResult{ID: proposed.ID, Name: proposed.Name, RawArguments: proposed.Arguments}

	args, err := p.parseArguments(proposed.Arguments)
	if err != nil {
		p.logger.Warn("Unparseable arguments for %s: %v", proposed.Name, err)
		outcome.Error = apperrors.NewToolError(apperrors.CodeArgumentParseFailed, proposed.Name,
			"failed to parse tool arguments", err)
		return outcome
	}
	outcome.Arguments = args

	value, err := p.callTool(ctx, proposed, args)
	if err != nil {
		outcome.Error = asToolError(proposed.Name, err)
		return outcome
	}
	outcome.Success = true
	outcome.Result = value
	return outcome
}

func (p *Processor) callTool(ctx context.Context, proposed ports.ProposedCall, args map[string]any) (any, error) {
	if p.tools == nil {
		return nil, apperrors.NotConnected(string(ports.StateDisconnected))
	}
	return p.tools.CallTool(ctx, proposed.Name, args, toolclient.WithCallID(proposed.ID))
}

func (p *Processor) parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	err := jsonx.Unmarshal([]byte(raw), &args)
	if err != nil && p.config.RepairArguments {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr == nil {
			p.logger.Debug("Repaired tool arguments: %s", repaired)
			args = nil
			err = jsonx.Unmarshal([]byte(repaired), &args)
		}
	}
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// toolTurnContent is the JSON payload the model sees for a call outcome.
func toolTurnContent(outcome FunctionCallResult) string {
	var payload any = outcome.Result
	if !outcome.Success {
		payload = map[string]any{"error": outcome.Error.Message, "code": outcome.Error.Code}
	}
	data, err := jsonx.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

func asToolError(tool string, err error) *apperrors.ToolError {
	var toolErr *apperrors.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return apperrors.NewToolError(apperrors.CodeExecutionFailed, tool, err.Error(), err)
}
