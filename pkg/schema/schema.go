// Package schema exposes the skill document model as machine-readable
// metadata. Editors, validators and the HTTP server's /schema endpoint use
// it to discover what a skill document may contain and what a given
// runtime can dispatch to.
//
// The output has three parts:
//
//   - Schema: the JSON Schema of the skill document model, reflected from
//     the Go types with their doc comments as field descriptions. Suitable
//     for editor validation and autocompletion of .skill.md frontmatter
//     and step blocks.
//   - Providers: the model providers the runtime has registered, each with
//     the models it advertises. Skills reference these in prompt step
//     options.
//   - Tools: the tools the runtime has registered, with their input
//     schemas. Skills reference these in tool steps.
//
// Example:
//
//	out, err := schema.Get(providers, toolRegistry)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var doc map[string]interface{}
//	_ = json.Unmarshal(out.Schema, &doc)
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/tools"
)

// Output is the complete schema metadata for one runtime.
type Output struct {
	// Schema is the JSON Schema of the skill document model.
	Schema json.RawMessage `json:"schema"`

	// Providers lists the registered model providers and their models.
	Providers []ProviderModels `json:"providers"`

	// Tools lists the registered tools with their input schemas.
	Tools []ToolDescriptor `json:"tools"`
}

// ProviderModels names one model provider and the models it advertises.
type ProviderModels struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// ToolDescriptor summarizes one registered tool.
type ToolDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Input       tools.ToolSchema `json:"input,omitempty"`
}

// Get compiles the schema metadata for a runtime. Either registry may be
// nil, in which case its section is empty; the document schema itself
// never depends on what is registered.
func Get(providers *provider.Registry, toolRegistry *tools.Registry) (*Output, error) {
	schemaBytes, err := ast.NewSchema()
	if err != nil {
		return nil, fmt.Errorf("reflecting document schema: %w", err)
	}

	out := &Output{
		Schema:    json.RawMessage(schemaBytes),
		Providers: []ProviderModels{},
		Tools:     []ToolDescriptor{},
	}

	if providers != nil {
		for _, name := range providers.Names() {
			adapter, err := providers.Find(name)
			if err != nil {
				continue
			}
			out.Providers = append(out.Providers, ProviderModels{
				Provider: name,
				Models:   adapter.SupportedModels(),
			})
		}
	}

	if toolRegistry != nil {
		for _, tool := range toolRegistry.List() {
			out.Tools = append(out.Tools, ToolDescriptor{
				Name:        tool.Name(),
				Description: tool.Description(),
				Category:    tool.Category(),
				Input:       tool.InputSchema(),
			})
		}
	}

	return out, nil
}
