package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/httpclient"
	"opsbot/internal/logging"
	jsonx "opsbot/internal/shared/json"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the client depends on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiClient struct {
	model  string
	models contentGenerator
	logger logging.Logger
}

// NewGeminiClient builds a client for the Gemini API. Transport failures are
// guarded by a circuit breaker on the underlying HTTP client.
func NewGeminiClient(ctx context.Context, model string, config Config) (ports.LLMClient, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}
	logger := logging.NewComponentLogger("llm-gemini")

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpclient.NewWithCircuitBreaker(timeout, logger, "gemini", apperrors.DefaultCircuitBreakerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &geminiClient{model: model, models: gc.Models, logger: logger}, nil
}

func (c *geminiClient) Model() string {
	return c.model
}

func (c *geminiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	contents, system := geminiContents(req.Messages)
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Tools:             geminiTools(req.Tools),
		SystemInstruction: system,
		Temperature:       &temp,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	c.logger.Debug("Gemini request: model=%s contents=%d tools=%d", c.model, len(contents), len(req.Tools))
	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return geminiResponse(resp)
}

// geminiContents maps the conversation onto Gemini roles. System turns are
// folded into the system instruction; tool turns become function responses.
func geminiContents(msgs []ports.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	callNames := make(map[string]string)
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case ports.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
		case ports.RoleAssistant:
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Name
				var args map[string]any
				_ = jsonx.Unmarshal([]byte(call.Arguments), &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args}})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case ports.RoleTool:
			var payload map[string]any
			if err := jsonx.Unmarshal([]byte(msg.Content), &payload); err != nil || payload == nil {
				payload = map[string]any{"output": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     callNames[msg.ToolCallID],
					Response: payload,
				}}},
			})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	return contents, system
}

func geminiTools(tools []ports.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		if !isValidToolName(tool.Name) {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: tool.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiResponse(resp *genai.GenerateContentResponse) (*ports.CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperrors.NewTransientError(errors.New("no candidates in response"), "LLM returned an empty response. Please retry.")
	}
	candidate := resp.Candidates[0]
	out := &ports.CompletionResponse{StopReason: string(candidate.FinishReason)}

	var text strings.Builder
	for i, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			callArgs := part.FunctionCall.Args
			if callArgs == nil {
				callArgs = map[string]any{}
			}
			args, err := jsonx.Marshal(callArgs)
			if err != nil {
				return nil, fmt.Errorf("encode function call args: %w", err)
			}
			callID := part.FunctionCall.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, ports.ProposedCall{
				ID:        callID,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
			continue
		}
		text.WriteString(part.Text)
	}
	out.Content = text.String()

	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = ports.TokenUsage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out, nil
}
