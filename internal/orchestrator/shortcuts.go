package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"opsbot/internal/agent/ports"
)

// SystemPersona frames every shortcut conversation.
const SystemPersona = "You are a professional Kubernetes operations assistant who is skilled at using K8s tools to manage clusters."

// Shortcut is a slash command with a canned instruction.
type Shortcut struct {
	Trigger     string `json:"trigger"`
	Description string `json:"description"`
	prompt      string
}

var builtinShortcuts = []Shortcut{
	{Trigger: "/pods", Description: "List pods", prompt: "Get the list of pods in the Kubernetes cluster and present it in a readable format"},
	{Trigger: "/logs", Description: "Show pod logs", prompt: "Get the latest logs of the specified pod"},
	{Trigger: "/scale", Description: "Scale a deployment", prompt: "Scale the specified deployment"},
	{Trigger: "/status", Description: "Check cluster status", prompt: "Check the cluster status and health"},
	{Trigger: "/help", Description: "Show help", prompt: "Show all available shortcuts"},
}

func lookupShortcut(trigger string) (Shortcut, bool) {
	for _, s := range builtinShortcuts {
		if s.Trigger == trigger {
			return s, true
		}
	}
	return Shortcut{}, false
}

// ChatWithShortcut expands a known trigger into a tool-enabled conversation.
// Unknown triggers get the listing of known ones without a model call.
func (p *Processor) ChatWithShortcut(ctx context.Context, trigger, content string) (*ProcessResult, error) {
	shortcut, ok := lookupShortcut(strings.TrimSpace(trigger))
	if !ok {
		p.metrics.RecordChatTurn(OutcomeShortcutUnknown)
		return &ProcessResult{Content: unknownShortcutMessage(trigger)}, nil
	}
	messages := []ports.Message{
		{Role: ports.RoleSystem, Content: SystemPersona},
		{Role: ports.RoleUser, Content: shortcut.prompt + "\n\nAdditional details: " + content},
	}
	return p.Chat(ctx, messages, true)
}

func unknownShortcutMessage(trigger string) string {
	lines := make([]string, 0, len(builtinShortcuts))
	for _, s := range builtinShortcuts {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Trigger, s.prompt))
	}
	return fmt.Sprintf("Unknown shortcut: %s\n\nAvailable shortcuts:\n%s", trigger, strings.Join(lines, "\n"))
}

// AvailableShortcuts lists the built-in triggers followed by one direct
// tool entry per catalog tool while the tool client is connected.
func (p *Processor) AvailableShortcuts(ctx context.Context) []Shortcut {
	out := make([]Shortcut, len(builtinShortcuts))
	copy(out, builtinShortcuts)
	if p.tools == nil || p.tools.State() != ports.StateConnected {
		return out
	}
	tools, err := p.tools.ListTools(ctx)
	if err != nil {
		p.logger.Warn("Listing tools for shortcuts failed: %v", err)
		return out
	}
	for _, tool := range tools {
		out = append(out, Shortcut{
			Trigger:     "/tool-" + tool.Name,
			Description: "Call tool directly: " + tool.Description,
		})
	}
	return out
}
