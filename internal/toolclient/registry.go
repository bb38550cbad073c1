package toolclient

import (
	"fmt"
	"sort"
	"strings"

	"opsbot/internal/agent/ports"
)

// catalog is an immutable snapshot of discovered tools. A new snapshot is
// published with a single pointer swap, so readers never see a partial one.
type catalog struct {
	byName map[string]ports.Tool
	sorted []ports.Tool
}

func newCatalog(tools []ports.Tool) (*catalog, error) {
	byName := make(map[string]ports.Tool, len(tools))
	for _, tool := range tools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		tool.Name = name
		if tool.InputSchema.Type == "" {
			tool.InputSchema.Type = "object"
		}
		byName[name] = tool
	}

	sorted := make([]ports.Tool, 0, len(byName))
	for _, tool := range byName {
		sorted = append(sorted, tool)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &catalog{byName: byName, sorted: sorted}, nil
}

func (c *catalog) get(name string) (ports.Tool, bool) {
	if c == nil {
		return ports.Tool{}, false
	}
	tool, ok := c.byName[name]
	return tool, ok
}

func (c *catalog) list() []ports.Tool {
	if c == nil {
		return nil
	}
	out := make([]ports.Tool, len(c.sorted))
	copy(out, c.sorted)
	return out
}

func (c *catalog) size() int {
	if c == nil {
		return 0
	}
	return len(c.sorted)
}
