package ast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position represents a position in a source file
type Position struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
	File   string `json:"file,omitempty"`
}

// String returns a human-readable representation of the position
func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ExtractPosition extracts position information from parsing errors
func ExtractPosition(source []byte, offset int) Position {
	lines := strings.Split(string(source), "\n")

	currentOffset := 0
	for lineNum, line := range lines {
		lineLength := len(line) + 1 // +1 for newline character
		if currentOffset+lineLength > offset {
			column := offset - currentOffset + 1
			return Position{
				Line:   lineNum + 1, // 1-indexed
				Column: column,
				Offset: offset,
			}
		}
		currentOffset += lineLength
	}

	// Fallback if position is at end of file
	return Position{
		Line:   len(lines),
		Column: len(lines[len(lines)-1]) + 1,
		Offset: offset,
	}
}

// ExtractContext extracts contextual lines around a position for error reporting
func ExtractContext(source []byte, position Position, contextLines int) string {
	lines := strings.Split(string(source), "\n")

	if position.Line <= 0 || position.Line > len(lines) {
		return ""
	}

	start := max(0, position.Line-contextLines-1)
	end := min(len(lines), position.Line+contextLines)

	var context strings.Builder
	for i := start; i < end; i++ {
		lineNum := i + 1
		prefix := "   "
		if lineNum == position.Line {
			prefix = ">> "
		}

		context.WriteString(fmt.Sprintf("%s%4d | %s\n", prefix, lineNum, lines[i]))

		// Add a pointer to the specific column for the error line
		if lineNum == position.Line && position.Column > 0 {
			pointer := strings.Repeat(" ", 8+min(position.Column-1, len(lines[i]))) + "^"
			context.WriteString(pointer + "\n")
		}
	}

	return context.String()
}

// Helper functions for min/max
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Skill represents a parsed skill document. A skill is immutable once
// parsed; the engine only ever reads it.
type Skill struct {
	ID          string                `yaml:"id" json:"id" validate:"required"`
	Version     string                `yaml:"version" json:"version" validate:"required"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Intents     []string              `yaml:"intents,omitempty" json:"intents,omitempty"`
	Inputs      map[string]*FieldSpec `yaml:"input,omitempty" json:"input,omitempty"`
	Output      *OutputContract       `yaml:"output,omitempty" json:"output,omitempty"`

	// Steps come from the Markdown body, not the frontmatter.
	Steps []*Step `yaml:"-" json:"steps"`

	// Internal fields for tracking
	SourceFile string   `yaml:"-" json:"-"`
	Position   Position `yaml:"-" json:"-"`
}

// StepType identifies the execution strategy of a step
type StepType string

const (
	StepTool     StepType = "tool"
	StepTemplate StepType = "template"
	StepPrompt   StepType = "prompt"
	StepAwait    StepType = "await"
)

// Step represents a single skill execution step. The type-specific
// configuration is inlined; only the fields matching Type are meaningful.
type Step struct {
	// Name comes from the step's section heading, unique within a skill.
	Name    string   `yaml:"-" json:"name"`
	Type    StepType `yaml:"type" json:"type" validate:"required"`
	VarName string   `yaml:"var,omitempty" json:"var,omitempty"`
	When    string   `yaml:"when,omitempty" json:"when,omitempty"`

	// Tool step configuration
	Tool         string                 `yaml:"tool,omitempty" json:"tool,omitempty"`
	Inputs       map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	OutputSchema map[string]*FieldSpec  `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`

	// Template step configuration
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// Prompt step configuration
	Prompt  string         `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Options *PromptOptions `yaml:"options,omitempty" json:"options,omitempty"`

	// Await step configuration. AwaitInputs shares the `inputs` key with
	// tool steps in the document; UnmarshalYAML splits them by type.
	Message     string                `yaml:"message,omitempty" json:"message,omitempty"`
	AwaitInputs map[string]*FieldSpec `yaml:"-" json:"await_inputs,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML implements custom unmarshaling for Step. Await steps
// declare a field schema under the same `inputs` key that tool steps use
// for template-bearing values, so the step type decides the decoding.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Type StepType `yaml:"type"`
	}
	if err := value.Decode(&head); err != nil {
		return err
	}

	if head.Type == StepAwait {
		var await struct {
			Type    StepType              `yaml:"type"`
			VarName string                `yaml:"var"`
			When    string                `yaml:"when"`
			Message string                `yaml:"message"`
			Inputs  map[string]*FieldSpec `yaml:"inputs"`
		}
		if err := value.Decode(&await); err != nil {
			return err
		}

		s.Type = await.Type
		s.VarName = await.VarName
		s.When = await.When
		s.Message = await.Message
		s.AwaitInputs = await.Inputs
		return nil
	}

	type stepAlias Step
	var temp stepAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*s = Step(temp)
	return nil
}

// MarshalYAML mirrors UnmarshalYAML: await steps emit their field schema
// under the shared `inputs` key, every other type emits its own config.
func (s *Step) MarshalYAML() (interface{}, error) {
	if s.Type == StepAwait {
		return struct {
			Type    StepType              `yaml:"type"`
			VarName string                `yaml:"var,omitempty"`
			When    string                `yaml:"when,omitempty"`
			Message string                `yaml:"message,omitempty"`
			Inputs  map[string]*FieldSpec `yaml:"inputs,omitempty"`
		}{
			Type:    s.Type,
			VarName: s.VarName,
			When:    s.When,
			Message: s.Message,
			Inputs:  s.AwaitInputs,
		}, nil
	}

	type stepAlias Step
	return (*stepAlias)(s), nil
}

// BindKey returns the scope key the step's output is bound under: the
// declared var name when present, otherwise the step name.
func (s *Step) BindKey() string {
	if s.VarName != "" {
		return s.VarName
	}
	return s.Name
}

// FieldSpec describes a single named field in an input schema, an await
// request or an output contract.
type FieldSpec struct {
	Type        string                 `yaml:"type,omitempty" json:"type,omitempty"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool                   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{}            `yaml:"default,omitempty" json:"default,omitempty"`
	Options     []interface{}          `yaml:"options,omitempty" json:"options,omitempty"`
	UI          map[string]interface{} `yaml:"ui,omitempty" json:"ui,omitempty"`
	Validation  *ValidationRule        `yaml:"validation,omitempty" json:"validation,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML implements custom unmarshaling for FieldSpec to handle
// shorthand syntax like "topic: string"
func (fs *FieldSpec) UnmarshalYAML(value *yaml.Node) error {
	// Handle shorthand syntax: the scalar is the type, required by default
	if value.Kind == yaml.ScalarNode {
		fs.Type = value.Value
		fs.Required = true
		return nil
	}

	// Handle full object syntax
	type fieldSpecAlias FieldSpec
	var temp fieldSpecAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*fs = FieldSpec(temp)
	return nil
}

// ValidationRule constrains the values a field accepts
type ValidationRule struct {
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	MinItems *int     `yaml:"min_items,omitempty" json:"min_items,omitempty"`
	MaxItems *int     `yaml:"max_items,omitempty" json:"max_items,omitempty"`
	Message  string   `yaml:"message,omitempty" json:"message,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// Output contract formats
const (
	OutputFormatJSON = "json"
	OutputFormatText = "text"
)

// OutputContract declares the fields a skill promises to produce
type OutputContract struct {
	Format string                `yaml:"format,omitempty" json:"format,omitempty"`
	Fields map[string]*FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML normalizes the output format, defaulting to json
func (oc *OutputContract) UnmarshalYAML(value *yaml.Node) error {
	type outputContractAlias OutputContract
	var temp outputContractAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*oc = OutputContract(temp)
	oc.Format = strings.ToLower(oc.Format)
	if oc.Format == "" {
		oc.Format = OutputFormatJSON
	}
	return nil
}

// PromptOptions configures the LLM invocation of a prompt step
type PromptOptions struct {
	Provider    string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	TopP        *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty" validate:"omitempty,min=0,max=1"`
	System      string   `yaml:"system,omitempty" json:"system,omitempty"`

	Position Position `yaml:"-" json:"-"`
}
