package builtin

import (
	"context"

	"github.com/skilletai/skillet/internal/tools"
)

// EchoTool copies its input text to the output. It exists for skill
// smoke tests and as the smallest possible tool example.
type EchoTool struct {
	tools.BaseTool
}

func NewEchoTool() *EchoTool {
	return &EchoTool{
		BaseTool: tools.BaseTool{
			ToolName:        "echo",
			ToolDescription: "Returns the given text unchanged",
			ToolCategory:    "utility",
			ToolTags:        []string{"utility", "testing"},
			ToolVersion:     "1.0.0",
			Input: tools.ToolSchema{
				"text": {
					Type:        "string",
					Description: "Text to echo back",
					Required:    true,
				},
			},
			Output: tools.ToolSchema{
				"text": {
					Type:        "string",
					Description: "The input text, unchanged",
				},
			},
		},
	}
}

func (t *EchoTool) Execute(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
	output.Set("text", input["text"])
	return nil
}
