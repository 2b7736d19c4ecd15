// Package builtin provides the tools every skillet installation ships
// with. They are ordinary Registry tools; nothing here is special-cased by
// the engine.
package builtin

import (
	"github.com/skilletai/skillet/internal/tools"
)

// Register adds all builtin tools to the registry.
func Register(registry *tools.Registry) error {
	all := []tools.Tool{
		NewEchoTool(),
		NewHTTPRequestTool(),
		NewReadFileTool(),
		NewCurrentTimeTool(),
		NewRunScriptTool(""),
	}

	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// numberValue reads a numeric input regardless of whether it arrived as a
// converted float or an untouched integer default.
func numberValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func floatPtr(f float64) *float64 { return &f }
