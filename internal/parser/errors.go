package parser

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skilletai/skillet/internal/ast"
)

// ParseError represents a parsing error with context
type ParseError struct {
	Message    string       `json:"message"`
	Position   ast.Position `json:"position"`
	Context    string       `json:"context,omitempty"`
	Source     []byte       `json:"-"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *ParseError) Error() string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("Parse error at %s: %s", e.Position.String(), e.Message))

	if e.Suggestion != "" {
		result.WriteString(fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	if e.Context != "" {
		result.WriteString(fmt.Sprintf("\n\nContext:\n%s", e.Context))
	}

	return result.String()
}

// MultiError represents multiple parsing or validation errors
type MultiError struct {
	Errors []error `json:"errors"`
}

// Error implements the error interface for MultiError
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Multiple errors (%d):\n", len(e.Errors)))

	for i, err := range e.Errors {
		result.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}

	return result.String()
}

// Add adds an error to the MultiError
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ToError returns the MultiError as an error if there are errors, nil otherwise
func (e *MultiError) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Flatten returns the individual parse errors inside err: the error itself
// when it is a ParseError, the elements of a MultiError, or nil when err
// carries no position information.
func Flatten(err error) []*ParseError {
	var multi *MultiError
	if errors.As(err, &multi) {
		var out []*ParseError
		for _, e := range multi.Errors {
			var perr *ParseError
			if errors.As(e, &perr) {
				out = append(out, perr)
			}
		}
		return out
	}

	var perr *ParseError
	if errors.As(err, &perr) {
		return []*ParseError{perr}
	}

	return nil
}

// wrapYAMLError converts a yaml.v3 error into a ParseError positioned in the
// surrounding document. yaml reports line numbers relative to the fragment it
// decoded, so lineOffset shifts them back into document coordinates.
func wrapYAMLError(err error, source []byte, file string, lineOffset int) *ParseError {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		pos := extractPositionFromMessage(typeErr.Errors[0], lineOffset)
		pos.File = file
		return &ParseError{
			Message:    strings.Join(typeErr.Errors, "; "),
			Position:   pos,
			Context:    ast.ExtractContext(source, pos, 2),
			Source:     source,
			Suggestion: suggestFix(typeErr.Errors[0]),
		}
	}

	message := strings.TrimPrefix(err.Error(), "yaml: ")
	pos := extractPositionFromMessage(err.Error(), lineOffset)
	pos.File = file
	return &ParseError{
		Message:    message,
		Position:   pos,
		Context:    ast.ExtractContext(source, pos, 2),
		Source:     source,
		Suggestion: suggestFix(message),
	}
}

// extractPositionFromMessage attempts to extract line/column from error messages
func extractPositionFromMessage(message string, lineOffset int) ast.Position {
	// YAML error messages often contain "line X" patterns
	words := strings.Split(message, " ")
	for i, word := range words {
		if word == "line" && i+1 < len(words) {
			var line int
			if _, err := fmt.Sscanf(words[i+1], "%d", &line); err == nil {
				return ast.Position{Line: line + lineOffset, Column: 1}
			}
		}
	}

	// Fallback to the start of the fragment
	return ast.Position{Line: 1 + lineOffset, Column: 1}
}

// suggestFix maps common YAML mistakes to a short actionable hint.
func suggestFix(message string) string {
	message = strings.ToLower(message)

	switch {
	case strings.Contains(message, "tab"):
		return "YAML does not allow tabs for indentation; use spaces"
	case strings.Contains(message, "indent"):
		return "Check that nested keys are indented consistently with spaces"
	case strings.Contains(message, "already defined") || strings.Contains(message, "duplicate"):
		return "Each key in a YAML mapping must be unique"
	case strings.Contains(message, "cannot unmarshal"):
		return "The value type does not match what this field expects"
	case strings.Contains(message, "not found in type"):
		return "Remove the unknown key or check its spelling"
	case strings.Contains(message, "mapping values"):
		return "A colon inside an unquoted value confuses YAML; quote the whole value"
	default:
		return ""
	}
}
