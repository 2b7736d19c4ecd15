package ast

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/skilletai/skillet/internal/condition"
	"github.com/skilletai/skillet/internal/template"
)

// ValidationError represents a validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if ve.Path != "" {
		return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
	}
	return ve.Message
}

// ValidationResult contains the results of AST validation
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(path, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Path:    path,
		Message: message,
	})
}

// AddFieldError adds a validation error for a specific field
func (vr *ValidationResult) AddFieldError(path, field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Path:    path,
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ToError returns a combined error if there are validation errors
func (vr *ValidationResult) ToError() error {
	if !vr.HasErrors() {
		return nil
	}

	var messages []string
	for _, err := range vr.Errors {
		messages = append(messages, err.Error())
	}

	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// Validator provides comprehensive validation for parsed skill documents
type Validator struct {
}

// NewValidator creates a new AST validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate is a convenience wrapper returning a single combined error
func (s *Skill) Validate() error {
	return NewValidator().ValidateSkill(s).ToError()
}

// ValidateSkill performs comprehensive validation of a skill document
func (v *Validator) ValidateSkill(s *Skill) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if s.ID == "" {
		result.AddFieldError("", "id", "skill id is required")
	} else if !isValidSkillID(s.ID) {
		result.AddFieldError("", "id", "skill id must contain only letters, digits, hyphens and underscores")
	}

	if s.Version == "" {
		result.AddFieldError("", "version", "skill version is required")
	} else if !isValidVersion(s.Version) {
		result.AddFieldError("", "version", fmt.Sprintf("invalid version %q: expected dotted numeric segments like \"1.0.0\"", s.Version))
	}

	if s.Inputs != nil {
		v.validateFieldSpecs(s.Inputs, "input", result)
	}

	if s.Output != nil {
		v.validateOutputContract(s.Output, "output", result)
	}

	if len(s.Steps) == 0 {
		result.AddError("", "skill must have at least one step")
		return result
	}

	v.validateSteps(s.Steps, result)

	return result
}

// validateSteps validates all skill steps
func (v *Validator) validateSteps(steps []*Step, result *ValidationResult) {
	names := make(map[string]bool)

	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)
		if step.Name != "" {
			path = fmt.Sprintf("step %q", step.Name)
		}

		if names[step.Name] {
			result.AddError(path, fmt.Sprintf("duplicate step name: %s", step.Name))
		}
		names[step.Name] = true

		v.validateStep(step, path, result)
	}
}

// validateStep validates a single step
func (v *Validator) validateStep(step *Step, path string, result *ValidationResult) {
	if step.Name == "" {
		result.AddFieldError(path, "name", "step name is required")
		return
	}

	if !isValidStepName(step.Name) {
		result.AddFieldError(path, "name", "step name must contain only letters, digits, hyphens and underscores")
	}

	if step.VarName != "" && !isValidIdentifier(step.VarName) {
		result.AddFieldError(path, "var", "var must be a valid identifier")
	}

	// when conditions and template bodies have to parse; catching a
	// malformed one here spares a mid-execution failure
	if step.When != "" {
		if _, err := condition.Parse(step.When); err != nil {
			result.AddFieldError(path, "when", fmt.Sprintf("invalid when condition: %v", err))
		}
	}

	switch step.Type {
	case StepTool:
		if step.Tool == "" {
			result.AddFieldError(path, "tool", "tool steps require a tool name")
		}
		v.validateTemplateInputs(step.Inputs, path+".inputs", result)
		if step.OutputSchema != nil {
			v.validateFieldSpecs(step.OutputSchema, path+".output_schema", result)
		}
	case StepTemplate:
		if step.Template == "" {
			result.AddFieldError(path, "template", "template steps require a template body")
		} else if err := template.Validate(step.Template); err != nil {
			result.AddFieldError(path, "template", err.Error())
		}
	case StepPrompt:
		if step.Prompt == "" {
			result.AddFieldError(path, "prompt", "prompt steps require a prompt body")
		} else if err := template.Validate(step.Prompt); err != nil {
			result.AddFieldError(path, "prompt", err.Error())
		}
		if step.Options != nil {
			v.validatePromptOptions(step.Options, path+".options", result)
			if step.Options.System != "" {
				if err := template.Validate(step.Options.System); err != nil {
					result.AddFieldError(path+".options", "system", err.Error())
				}
			}
		}
	case StepAwait:
		if step.Message != "" {
			if err := template.Validate(step.Message); err != nil {
				result.AddFieldError(path, "message", err.Error())
			}
		}
		if len(step.AwaitInputs) == 0 {
			result.AddFieldError(path, "inputs", "await steps require at least one requested input")
		} else {
			v.validateFieldSpecs(step.AwaitInputs, path+".inputs", result)
		}
	case "":
		result.AddFieldError(path, "type", "step type is required")
	default:
		result.AddFieldError(path, "type", fmt.Sprintf("unknown step type %q: must be one of tool, template, prompt, await", step.Type))
	}
}

// validateTemplateInputs checks that every string leaf of a tool step's raw
// inputs parses as a template, walking nested maps and lists the same way
// rendering does.
func (v *Validator) validateTemplateInputs(inputs map[string]interface{}, path string, result *ValidationResult) {
	for key, value := range inputs {
		v.validateTemplateValue(value, fmt.Sprintf("%s.%s", path, key), result)
	}
}

func (v *Validator) validateTemplateValue(value interface{}, path string, result *ValidationResult) {
	switch val := value.(type) {
	case string:
		if err := template.Validate(val); err != nil {
			result.AddError(path, err.Error())
		}
	case map[string]interface{}:
		for key, item := range val {
			v.validateTemplateValue(item, fmt.Sprintf("%s.%s", path, key), result)
		}
	case map[interface{}]interface{}:
		for key, item := range val {
			v.validateTemplateValue(item, fmt.Sprintf("%s.%v", path, key), result)
		}
	case []interface{}:
		for i, item := range val {
			v.validateTemplateValue(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

// validateFieldSpecs validates a named field spec map
func (v *Validator) validateFieldSpecs(specs map[string]*FieldSpec, path string, result *ValidationResult) {
	for name, spec := range specs {
		specPath := fmt.Sprintf("%s.%s", path, name)

		if !isValidIdentifier(name) {
			result.AddError(specPath, "field name must be a valid identifier")
		}

		if spec == nil {
			result.AddError(specPath, "field spec cannot be empty")
			continue
		}

		v.validateFieldSpec(spec, specPath, result)
	}
}

// validateFieldSpec validates a single field spec
func (v *Validator) validateFieldSpec(spec *FieldSpec, path string, result *ValidationResult) {
	if spec.Type != "" {
		validTypes := []string{"string", "number", "integer", "boolean", "object", "array"}
		if !contains(validTypes, spec.Type) {
			result.AddFieldError(path, "type", fmt.Sprintf("invalid type: %s", spec.Type))
		}
	}

	if spec.Validation == nil {
		return
	}

	rule := spec.Validation
	if rule.Pattern != "" {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			result.AddFieldError(path, "validation.pattern", fmt.Sprintf("invalid pattern: %v", err))
		}
	}

	if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
		result.AddError(path, "min cannot be greater than max")
	}

	if rule.MinItems != nil && *rule.MinItems < 0 {
		result.AddFieldError(path, "validation.min_items", "min_items cannot be negative")
	}

	if rule.MaxItems != nil && *rule.MaxItems < 0 {
		result.AddFieldError(path, "validation.max_items", "max_items cannot be negative")
	}

	if rule.MinItems != nil && rule.MaxItems != nil && *rule.MinItems > *rule.MaxItems {
		result.AddError(path, "min_items cannot be greater than max_items")
	}
}

// validateOutputContract validates the declared output contract
func (v *Validator) validateOutputContract(contract *OutputContract, path string, result *ValidationResult) {
	if contract.Format != "" && contract.Format != OutputFormatJSON && contract.Format != OutputFormatText {
		result.AddFieldError(path, "format", fmt.Sprintf("invalid format %q: must be json or text", contract.Format))
	}

	if contract.Fields != nil {
		v.validateFieldSpecs(contract.Fields, path+".fields", result)
	}
}

// validatePromptOptions validates LLM options on a prompt step
func (v *Validator) validatePromptOptions(opts *PromptOptions, path string, result *ValidationResult) {
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		result.AddFieldError(path, "temperature", "temperature must be between 0 and 2")
	}

	if opts.TopP != nil && (*opts.TopP < 0 || *opts.TopP > 1) {
		result.AddFieldError(path, "top_p", "top_p must be between 0 and 1")
	}

	if opts.MaxTokens != nil && *opts.MaxTokens < 1 {
		result.AddFieldError(path, "max_tokens", "max_tokens must be positive")
	}
}

// Validation helper functions

// isValidIdentifier checks if a string is a valid identifier
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	// Must start with letter or underscore, followed by letters, digits, or underscores
	matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*$`, s)
	return matched
}

// isValidStepName checks if a string is a valid step name. Step names come
// from Markdown headings, so hyphens are allowed alongside identifiers.
func isValidStepName(s string) bool {
	if s == "" {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_-]*$`, s)
	return matched
}

// isValidSkillID checks if a string is a valid skill id
func isValidSkillID(s string) bool {
	if s == "" {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`, s)
	return matched
}

// isValidVersion checks if a string is a dotted numeric version
func isValidVersion(s string) bool {
	matched, _ := regexp.MatchString(`^[0-9]+(\.[0-9]+)*$`, s)
	return matched
}
