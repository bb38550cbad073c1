package orchestrator

import (
	"fmt"
	"strings"

	jsonx "opsbot/internal/shared/json"
)

// DefaultMaxOutputLength bounds a reply before it is truncated.
const DefaultMaxOutputLength = 4000

const (
	resultPreviewLength = 200
	listPreviewItems    = 10
	truncationMarker    = "\n\n... (content too long, truncated)"
)

var markdownIndicators = []string{"**", "```", "###", "•", "📦", "✅", "❌"}

// Output is a reply ready for a chat front end.
type Output struct {
	Content  string `json:"content"`
	Markdown bool   `json:"markdown"`
}

// ShapeOutput truncates content longer than maxLen runes to maxLen-100 runes
// plus a marker, and flags whether it should be rendered as markdown.
func ShapeOutput(content string, maxLen int) Output {
	if maxLen <= 0 {
		maxLen = DefaultMaxOutputLength
	}
	runes := []rune(content)
	if len(runes) > maxLen {
		keep := maxLen - 100
		if keep < 0 {
			keep = 0
		}
		content = string(runes[:keep]) + truncationMarker
	}
	return Output{Content: content, Markdown: isMarkdown(content)}
}

func isMarkdown(content string) bool {
	for _, indicator := range markdownIndicators {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return false
}

// FormatResponseWithTools appends a per-call summary to the model's answer.
func FormatResponseWithTools(content string, calls []FunctionCallResult) string {
	if len(calls) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n**Tool call details:**\n")
	for i, call := range calls {
		fmt.Fprintf(&b, "\n**%d. %s**\n", i+1, call.Name)
		if !call.Success {
			msg := "unknown error"
			if call.Error != nil {
				msg = call.Error.Message
			}
			fmt.Fprintf(&b, "❌ Failed: %s\n", msg)
			continue
		}
		b.WriteString("✅ Succeeded\n")
		if items, ok := itemsOf(call.Result); ok {
			fmt.Fprintf(&b, "📊 Returned %d items\n", len(items))
			continue
		}
		fmt.Fprintf(&b, "📋 Result: %s...\n", truncateRunes(preview(call.Result), resultPreviewLength))
	}
	return b.String()
}

// FormatToolResult renders a tool payload for people rather than models.
func FormatToolResult(result any) string {
	switch v := result.(type) {
	case map[string]any:
		if items, ok := itemsOf(v); ok {
			return formatItems(items)
		}
		if pod, ok := v["pod_name"]; ok {
			if content, ok := v["content"]; ok {
				return fmt.Sprintf("📋 **%v** logs:\n\n```\n%v\n```", pod, content)
			}
		}
		if deployment, ok := v["deployment_name"]; ok {
			status := "❌ Failed"
			if succeeded, _ := v["success"].(bool); succeeded {
				status = "✅ Succeeded"
			}
			return fmt.Sprintf("🔄 Scaling complete:\n• Deployment: %v\n• Namespace: %v\n• Replicas: %v → %v\n• Status: %s",
				deployment, valueOr(v, "namespace", "default"),
				valueOr(v, "previous_replicas", 0), valueOr(v, "target_replicas", 0), status)
		}
		return "📄 Result:\n```json\n" + indentJSON(v) + "\n```"
	case []any:
		lines := make([]string, 0, min(len(v), listPreviewItems))
		for _, item := range v[:min(len(v), listPreviewItems)] {
			lines = append(lines, fmt.Sprintf("• %v", item))
		}
		return fmt.Sprintf("📋 List result (%d items):\n%s", len(v), strings.Join(lines, "\n"))
	default:
		return fmt.Sprintf("📄 Result: %v", result)
	}
}

func formatItems(items []any) string {
	if len(items) == 0 {
		return "📭 No resources found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Found %d resources:\n\n", len(items))
	for _, raw := range items[:min(len(items), listPreviewItems)] {
		item, _ := raw.(map[string]any)
		metadata, _ := item["metadata"].(map[string]any)
		status, _ := item["status"].(map[string]any)
		fmt.Fprintf(&b, "• **%v**\n", valueOr(metadata, "name", "Unknown"))
		fmt.Fprintf(&b, "  Namespace: %v\n", valueOr(metadata, "namespace", "default"))
		fmt.Fprintf(&b, "  Status: %v\n\n", valueOr(status, "phase", "Unknown"))
	}
	if len(items) > listPreviewItems {
		fmt.Fprintf(&b, "... and %d more resources\n", len(items)-listPreviewItems)
	}
	return b.String()
}

func itemsOf(result any) ([]any, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["items"].([]any)
	return items, ok
}

func valueOr(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return fallback
}

func preview(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return indentJSON(result)
}

func indentJSON(v any) string {
	data, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
