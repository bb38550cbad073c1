package toolclient

import (
	"context"
	"fmt"
	"os"

	"opsbot/internal/agent/ports"

	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed tool list.
type StaticSource []ports.Tool

// Discover returns a copy of the static list.
func (s StaticSource) Discover(context.Context) ([]ports.Tool, error) {
	out := make([]ports.Tool, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads the tool catalog from a YAML document of the form
//
//	tools:
//	  - name: k8s-get-pods
//	    description: ...
//	    input_schema: {type: object, properties: {...}, required: [...]}
//
// The file is re-read on every Discover, so a reconnect picks up edits.
type FileSource struct {
	Path string
}

type toolCatalogFile struct {
	Tools []ports.Tool `yaml:"tools"`
}

// Discover loads and decodes the catalog file.
func (s FileSource) Discover(ctx context.Context) ([]ports.Tool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	var doc toolCatalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalog %s: %w", s.Path, err)
	}
	if len(doc.Tools) == 0 {
		return nil, fmt.Errorf("tool catalog %s declares no tools", s.Path)
	}
	return doc.Tools, nil
}
