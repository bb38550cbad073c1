package llm

import (
	"regexp"
	"strings"

	"opsbot/internal/agent/ports"
)

var validToolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func isValidToolName(name string) bool {
	return validToolNamePattern.MatchString(strings.TrimSpace(name))
}

// convertTools renders tool definitions in the function-calling wire shape
// {type: function, function: {name, description, parameters}}.
func convertTools(tools []ports.ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		if !isValidToolName(tool.Name) {
			continue
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return result
}

// buildToolCallHistory echoes proposed calls back to the provider with their
// names and raw argument strings untouched. Every call is kept: each one has
// a tool turn answering it.
func buildToolCallHistory(calls []ports.ProposedCall) []map[string]any {
	result := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		args := call.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		result = append(result, map[string]any{
			"id":   call.ID,
			"type": "function",
			"function": map[string]any{
				"name":      call.Name,
				"arguments": args,
			},
		})
	}
	return result
}

func convertMessages(msgs []ports.Message) []map[string]any {
	result := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		entry := map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			entry["tool_calls"] = buildToolCallHistory(msg.ToolCalls)
		}
		if msg.ToolCallID != "" {
			entry["tool_call_id"] = msg.ToolCallID
		}
		result = append(result, entry)
	}
	return result
}

func extractRequestID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata["request_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
