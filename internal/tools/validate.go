package tools

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// ValidateParams checks a parameter map against a schema. Absent optional
// parameters take their declared default; values arriving as strings are
// converted to the declared type, since templated inputs always render to
// strings. Parameters not named by the schema are rejected.
func ValidateParams(schema ToolSchema, input map[string]interface{}) *ValidationResult {
	result := &ValidationResult{
		Valid:     true,
		Processed: make(map[string]interface{}),
	}

	if len(schema) == 0 {
		for name, value := range input {
			result.Processed[name] = value
		}
		return result
	}

	for name, spec := range schema {
		value, provided := input[name]
		if !provided || value == nil {
			if spec.Required {
				result.AddError(name, "required parameter is missing", nil)
			} else if spec.DefaultValue != nil {
				result.Processed[name] = spec.DefaultValue
			}
			continue
		}

		converted, err := convertParamType(value, spec.Type)
		if err != nil {
			result.AddError(name, err.Error(), value)
			continue
		}

		if err := checkParamConstraints(converted, spec); err != nil {
			result.AddError(name, err.Error(), converted)
			continue
		}

		result.Processed[name] = converted
	}

	for name, value := range input {
		if _, known := schema[name]; !known {
			result.AddError(name, "unexpected parameter", value)
		}
	}

	return result
}

// convertParamType converts a value to the declared parameter type where a
// lossless conversion exists. An empty type accepts anything.
func convertParamType(value interface{}, expectedType string) (interface{}, error) {
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

// checkParamConstraints applies the spec's options and constraints to an
// already type-converted value.
func checkParamConstraints(value interface{}, spec *ParameterSpec) error {
	if len(spec.Options) > 0 {
		found := false
		for _, option := range spec.Options {
			if reflect.DeepEqual(option, value) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value must be one of: %s", renderOptions(spec.Options))
		}
	}

	c := spec.Constraints
	if c == nil {
		return nil
	}

	if str, ok := value.(string); ok && c.Pattern != "" {
		matched, err := regexp.MatchString(c.Pattern, str)
		if err != nil {
			return fmt.Errorf("invalid pattern regex: %v", err)
		}
		if !matched {
			return fmt.Errorf("value does not match required pattern: %s", c.Pattern)
		}
	}

	if num, ok := asFloat(value); ok {
		if c.Min != nil && num < *c.Min {
			return fmt.Errorf("value %v is less than minimum %v", num, *c.Min)
		}
		if c.Max != nil && num > *c.Max {
			return fmt.Errorf("value %v is greater than maximum %v", num, *c.Max)
		}
	}

	if value != nil && reflect.TypeOf(value).Kind() == reflect.Slice {
		length := reflect.ValueOf(value).Len()
		if c.MinItems != nil && length < *c.MinItems {
			return fmt.Errorf("array has %d items, minimum required is %d", length, *c.MinItems)
		}
		if c.MaxItems != nil && length > *c.MaxItems {
			return fmt.Errorf("array has %d items, maximum allowed is %d", length, *c.MaxItems)
		}
	}

	return nil
}

func asFloat(value interface{}) (float64, bool) {
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

func renderOptions(options []interface{}) string {
	parts := make([]string, len(options))
	for i, option := range options {
		parts[i] = fmt.Sprintf("%v", option)
	}
	return strings.Join(parts, ", ")
}
