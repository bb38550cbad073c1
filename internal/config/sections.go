package config

import (
	"fmt"

	"opsbot/internal/observability"
	jsonx "opsbot/internal/shared/json"
)

// Section names accepted by Section and UpdateSection.
const (
	SectionLLM          = "llm"
	SectionClient       = "client"
	SectionOrchestrator = "orchestrator"
	SectionTools        = "tools"
	SectionServer       = "server"
	SectionHistory      = "history"
)

// UnknownSectionError is returned for a section name outside the list above.
type UnknownSectionError struct {
	Name string
}

func (e UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown config section %q", e.Name)
}

// SectionNames lists the editable sections in a stable order.
func SectionNames() []string {
	return []string{SectionLLM, SectionClient, SectionOrchestrator, SectionTools, SectionServer, SectionHistory}
}

func (c *Config) sectionPtr(name string) (any, error) {
	switch name {
	case SectionLLM:
		return &c.LLM, nil
	case SectionClient:
		return &c.Client, nil
	case SectionOrchestrator:
		return &c.Orchestrator, nil
	case SectionTools:
		return &c.Tools, nil
	case SectionServer:
		return &c.Server, nil
	case SectionHistory:
		return &c.History, nil
	default:
		return nil, UnknownSectionError{Name: name}
	}
}

// Section renders one section as a JSON object. Secrets are masked.
func (c Config) Section(name string) (map[string]any, error) {
	if name == SectionLLM && c.LLM.APIKey != "" {
		c.LLM.APIKey = observability.SanitizeAPIKey(c.LLM.APIKey)
	}
	ptr, err := c.sectionPtr(name)
	if err != nil {
		return nil, err
	}
	return toMap(ptr)
}

// UpdateSection returns a copy of c with patch merged into the named
// section. Keys not present in the section are rejected, and the merged
// configuration must validate.
func (c Config) UpdateSection(name string, patch map[string]any) (Config, error) {
	next := c.clone()
	ptr, err := next.sectionPtr(name)
	if err != nil {
		return Config{}, err
	}
	current, err := toMap(ptr)
	if err != nil {
		return Config{}, err
	}
	for key, value := range patch {
		if _, ok := current[key]; !ok {
			return Config{}, fmt.Errorf("unknown key %q in section %q", key, name)
		}
		current[key] = value
	}
	data, err := jsonx.Marshal(current)
	if err != nil {
		return Config{}, fmt.Errorf("encode section %s: %w", name, err)
	}
	if err := jsonx.Unmarshal(data, ptr); err != nil {
		return Config{}, fmt.Errorf("decode section %s: %w", name, err)
	}
	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	return next, nil
}

func (c Config) clone() Config {
	out := c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return out
}

func toMap(v any) (map[string]any, error) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := jsonx.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
