package tools

import (
	"context"
	"fmt"
	"strings"
)

// ParameterSpec describes a single named parameter in a tool schema.
type ParameterSpec struct {
	Type         string        `json:"type"`
	Description  string        `json:"description,omitempty"`
	Required     bool          `json:"required,omitempty"`
	DefaultValue interface{}   `json:"default,omitempty"`
	Options      []interface{} `json:"options,omitempty"`
	Example      interface{}   `json:"example,omitempty"`
	Constraints  *Constraints  `json:"constraints,omitempty"`
}

// Constraints bound the values a parameter accepts beyond its type.
type Constraints struct {
	Pattern  string   `json:"pattern,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	MinItems *int     `json:"min_items,omitempty"`
	MaxItems *int     `json:"max_items,omitempty"`
}

// ToolSchema maps parameter names to their specs. It describes either the
// input a tool accepts or the output it promises to produce.
type ToolSchema map[string]*ParameterSpec

// ValidationError describes a single rejected parameter.
type ValidationError struct {
	Parameter string      `json:"parameter"`
	Message   string      `json:"message"`
	Value     interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter '%s': %s", e.Parameter, e.Message)
}

// ValidationResult collects the outcome of validating a parameter map
// against a ToolSchema. Processed holds the converted values with defaults
// applied and is only meaningful when Valid is true.
type ValidationResult struct {
	Valid     bool                   `json:"valid"`
	Errors    []*ValidationError     `json:"errors,omitempty"`
	Processed map[string]interface{} `json:"-"`
}

// AddError records a validation failure and marks the result invalid.
func (r *ValidationResult) AddError(parameter, message string, value interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, &ValidationError{
		Parameter: parameter,
		Message:   message,
		Value:     value,
	})
}

// Error renders all collected failures as a single message.
func (r *ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Tool is a named capability a skill step can invoke. Implementations must
// be safe for concurrent use; the same tool instance serves every execution
// that references it.
type Tool interface {
	// Name returns the registry key steps reference the tool by.
	Name() string

	// Description returns a human readable summary of what the tool does.
	Description() string

	// Category groups related tools for listings.
	Category() string

	// Tags returns free-form labels used for discovery.
	Tags() []string

	// Version returns the tool's version string.
	Version() string

	// InputSchema describes the parameters the tool accepts.
	InputSchema() ToolSchema

	// OutputSchema describes the keys the tool writes to its output context.
	OutputSchema() ToolSchema

	// ValidateInput checks a parameter map against the input schema.
	ValidateInput(input map[string]interface{}) *ValidationResult

	// Execute runs the tool. Results are published through the output
	// context; the returned error marks the whole invocation as failed.
	Execute(ctx context.Context, input map[string]interface{}, output *OutputContext) error
}

// BaseTool carries the descriptive surface shared by every builtin tool so
// concrete tools only implement Execute. ValidateInput is schema-driven.
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolCategory    string
	ToolTags        []string
	ToolVersion     string
	Input           ToolSchema
	Output          ToolSchema
}

func (b *BaseTool) Name() string             { return b.ToolName }
func (b *BaseTool) Description() string      { return b.ToolDescription }
func (b *BaseTool) Category() string         { return b.ToolCategory }
func (b *BaseTool) Tags() []string           { return b.ToolTags }
func (b *BaseTool) Version() string          { return b.ToolVersion }
func (b *BaseTool) InputSchema() ToolSchema  { return b.Input }
func (b *BaseTool) OutputSchema() ToolSchema { return b.Output }

// ValidateInput validates against the declared input schema, applying
// defaults and converting compatible values.
func (b *BaseTool) ValidateInput(input map[string]interface{}) *ValidationResult {
	return ValidateParams(b.Input, input)
}
