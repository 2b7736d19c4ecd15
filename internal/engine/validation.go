package engine

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/skilletai/skillet/internal/ast"
)

// InputValidationError represents a validation error for a specific field
type InputValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface
func (e *InputValidationError) Error() string {
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

// InputValidationResult holds the results of validating a value map against
// a field spec map. ProcessedInputs carries the converted values with
// defaults applied.
type InputValidationResult struct {
	Valid           bool                    `json:"valid"`
	Errors          []*InputValidationError `json:"errors,omitempty"`
	ProcessedInputs map[string]any          `json:"processed_inputs,omitempty"`
}

// Error renders all collected failures as a single message.
func (r *InputValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// AddError adds a validation error
func (r *InputValidationResult) AddError(field, message string, value any) {
	r.Valid = false
	r.Errors = append(r.Errors, &InputValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// ValidateFields validates provided values against a map of field specs.
// Required fields must be present, absent optional fields take their
// declared default, and values not named by any spec are rejected. The same
// path serves skill inputs, await resume inputs and output contracts.
func ValidateFields(specs map[string]*ast.FieldSpec, provided map[string]any) *InputValidationResult {
	result := &InputValidationResult{
		Valid:           true,
		ProcessedInputs: make(map[string]any),
	}

	// No declared fields, accept anything
	if specs == nil {
		result.ProcessedInputs = provided
		return result
	}

	for fieldName, spec := range specs {
		providedValue, hasValue := provided[fieldName]

		if !hasValue {
			if spec.Required {
				result.AddError(fieldName, "required field is missing", nil)
				continue
			}
			// Apply default value if available
			if spec.Default != nil {
				result.ProcessedInputs[fieldName] = spec.Default
				continue
			}
			// Optional field without default - skip
			continue
		}

		processedValue, err := validateFieldValue(providedValue, spec)
		if err != nil {
			result.AddError(fieldName, err.Error(), providedValue)
		} else {
			result.ProcessedInputs[fieldName] = processedValue
		}
	}

	// Check for unexpected fields
	for fieldName := range provided {
		if _, defined := specs[fieldName]; !defined {
			result.AddError(fieldName, "unexpected field", provided[fieldName])
		}
	}

	return result
}

// ValidateToolOutputs checks the values a tool wrote against the step's
// declared output schema. Declared fields are converted and rule-checked the
// same way inputs are; values the schema does not name pass through, since a
// tool is free to write more than the step declares.
func ValidateToolOutputs(specs map[string]*ast.FieldSpec, outputs map[string]any) *InputValidationResult {
	result := &InputValidationResult{
		Valid:           true,
		ProcessedInputs: make(map[string]any, len(outputs)),
	}

	for name, value := range outputs {
		result.ProcessedInputs[name] = value
	}

	for fieldName, spec := range specs {
		value, written := outputs[fieldName]
		if !written {
			if spec.Required {
				result.AddError(fieldName, "required output is missing", nil)
			} else if spec.Default != nil {
				result.ProcessedInputs[fieldName] = spec.Default
			}
			continue
		}

		processed, err := validateFieldValue(value, spec)
		if err != nil {
			result.AddError(fieldName, err.Error(), value)
		} else {
			result.ProcessedInputs[fieldName] = processed
		}
	}

	return result
}

// ValidateSkillInputs validates caller-provided inputs against the skill's
// input schema. Callers at the CLI and server boundary reject invalid input
// before an execution starts.
func ValidateSkillInputs(skill *ast.Skill, provided map[string]any) *InputValidationResult {
	return ValidateFields(skill.Inputs, provided)
}

// ApplyInputDefaults fills absent optional fields with their declared
// defaults without rejecting anything. The engine itself only defaults;
// full validation is the calling boundary's job.
func ApplyInputDefaults(specs map[string]*ast.FieldSpec, input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	for fieldName, spec := range specs {
		if _, hasValue := out[fieldName]; !hasValue && spec.Default != nil {
			out[fieldName] = spec.Default
		}
	}
	return out
}

// validateFieldValue validates a single value against its field spec
func validateFieldValue(value any, spec *ast.FieldSpec) (any, error) {
	convertedValue := value

	if spec.Type != "" {
		var err error
		convertedValue, err = convertAndValidateType(value, spec.Type)
		if err != nil {
			return nil, fmt.Errorf("invalid type: expected %s, got %T", spec.Type, value)
		}
	}

	if len(spec.Options) > 0 {
		found := false
		for _, option := range spec.Options {
			if reflect.DeepEqual(option, convertedValue) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("value must be one of: %s", renderOptions(spec.Options))
		}
	}

	if err := validateRule(convertedValue, spec.Validation); err != nil {
		return nil, err
	}

	return convertedValue, nil
}

// validateRule applies a field's validation rule to an already converted
// value. A custom rule message replaces the generated one.
func validateRule(value any, rule *ast.ValidationRule) error {
	if rule == nil {
		return nil
	}

	fail := func(format string, args ...any) error {
		if rule.Message != "" {
			return errors.New(rule.Message)
		}
		return fmt.Errorf(format, args...)
	}

	if str, ok := value.(string); ok && rule.Pattern != "" {
		matched, err := regexp.MatchString(rule.Pattern, str)
		if err != nil {
			return fmt.Errorf("invalid pattern regex: %v", err)
		}
		if !matched {
			return fail("value does not match required pattern: %s", rule.Pattern)
		}
	}

	if numValue, ok := asNumeric(value); ok {
		if rule.Min != nil && numValue < *rule.Min {
			return fail("value %v is less than minimum %v", numValue, *rule.Min)
		}
		if rule.Max != nil && numValue > *rule.Max {
			return fail("value %v is greater than maximum %v", numValue, *rule.Max)
		}
	}

	if value != nil && reflect.TypeOf(value).Kind() == reflect.Slice {
		length := reflect.ValueOf(value).Len()
		if rule.MinItems != nil && length < *rule.MinItems {
			return fail("array has %d items, minimum required is %d", length, *rule.MinItems)
		}
		if rule.MaxItems != nil && length > *rule.MaxItems {
			return fail("array has %d items, maximum allowed is %d", length, *rule.MaxItems)
		}
	}

	return nil
}

// convertAndValidateType converts a value to the declared field type where
// a lossless conversion exists. Templated values arrive as strings, so
// string-to-scalar conversions are expected.
func convertAndValidateType(value any, expectedType string) (any, error) {
	switch expectedType {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int32, int64, float32, float64:
			return fmt.Sprintf("%v", v), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			return nil, fmt.Errorf("cannot convert %T to string", value)
		}

	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
			return nil, fmt.Errorf("string value %q cannot be converted to number", v)
		default:
			return nil, fmt.Errorf("cannot convert %T to number", value)
		}

	case "integer":
		switch v := value.(type) {
		case int:
			return v, nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case float32:
			if v == float32(int(v)) {
				return int(v), nil
			}
			return nil, fmt.Errorf("float value %v cannot be converted to integer", v)
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
			return nil, fmt.Errorf("float value %v cannot be converted to integer", v)
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i, nil
			}
			return nil, fmt.Errorf("string value %q cannot be converted to integer", v)
		default:
			return nil, fmt.Errorf("cannot convert %T to integer", value)
		}

	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, nil
			}
			return nil, fmt.Errorf("string value %q cannot be converted to boolean", v)
		default:
			return nil, fmt.Errorf("cannot convert %T to boolean", value)
		}

	case "array":
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Slice {
			return value, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)

	case "object":
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Map {
			return value, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)

	default:
		return value, nil
	}
}

func asNumeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func renderOptions(options []any) string {
	parts := make([]string, len(options))
	for i, option := range options {
		parts[i] = fmt.Sprintf("%v", option)
	}
	return strings.Join(parts, ", ")
}
