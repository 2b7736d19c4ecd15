package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/skilletai/skillet/internal/tools"
)

// ReadFileTool reads a file from the local filesystem into the skill
// scope. Reads are capped so a skill cannot pull an unbounded file into
// an execution snapshot.
type ReadFileTool struct {
	tools.BaseTool
}

func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{
		BaseTool: tools.BaseTool{
			ToolName:        "read_file",
			ToolDescription: "Reads a local file and returns its content",
			ToolCategory:    "filesystem",
			ToolTags:        []string{"filesystem", "io"},
			ToolVersion:     "1.0.0",
			Input: tools.ToolSchema{
				"path": {
					Type:        "string",
					Description: "Path of the file to read",
					Required:    true,
				},
				"max_bytes": {
					Type:         "integer",
					Description:  "Upper bound on bytes returned",
					DefaultValue: 1 << 20,
					Constraints:  &tools.Constraints{Min: floatPtr(1)},
				},
			},
			Output: tools.ToolSchema{
				"content":   {Type: "string", Description: "File content, possibly truncated"},
				"size":      {Type: "number", Description: "Size of the file on disk in bytes"},
				"truncated": {Type: "boolean", Description: "Whether the content was cut at max_bytes"},
			},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
	path, _ := input["path"].(string)
	path = filepath.Clean(path)

	limit := int64(numberValue(input["max_bytes"]))
	if limit <= 0 {
		limit = 1 << 20
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	output.Set("content", string(data))
	output.Set("size", info.Size())
	output.Set("truncated", info.Size() > int64(len(data)))
	return nil
}
