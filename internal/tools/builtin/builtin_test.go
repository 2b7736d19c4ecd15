package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/tools"
)

func TestRegister(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, Register(registry))

	assert.Equal(t, []string{"current_time", "echo", "http_request", "read_file", "run_script"}, registry.Names())
}

func TestRegister_DuplicateFails(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(NewEchoTool()))

	err := Register(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestEchoTool(t *testing.T) {
	tool := NewEchoTool()

	validation := tool.ValidateInput(map[string]interface{}{"text": "hello"})
	require.True(t, validation.Valid)

	output := tools.NewOutputContext()
	require.NoError(t, tool.Execute(context.Background(), validation.Processed, output))
	assert.Equal(t, map[string]interface{}{"text": "hello"}, output.Values())
}

func TestEchoTool_RequiresText(t *testing.T) {
	tool := NewEchoTool()

	validation := tool.ValidateInput(map[string]interface{}{})
	assert.False(t, validation.Valid)
}

func TestCurrentTimeTool(t *testing.T) {
	tool := NewCurrentTimeTool()
	tool.Now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	tests := []struct {
		format   string
		expected string
	}{
		{"rfc3339", "2025-03-14T09:26:53Z"},
		{"date", "2025-03-14"},
		{"time", "09:26:53"},
		{"unix", "1741944413"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			output := tools.NewOutputContext()
			input := map[string]interface{}{"format": tt.format, "timezone": "UTC"}
			require.NoError(t, tool.Execute(context.Background(), input, output))

			values := output.Values()
			assert.Equal(t, tt.expected, values["timestamp"])
			assert.Equal(t, int64(1741944413), values["unix"])
		})
	}
}

func TestCurrentTimeTool_UnknownTimezone(t *testing.T) {
	tool := NewCurrentTimeTool()

	output := tools.NewOutputContext()
	err := tool.Execute(context.Background(), map[string]interface{}{"timezone": "Mars/Olympus"}, output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timezone")
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tool := NewReadFileTool()
	output := tools.NewOutputContext()
	require.NoError(t, tool.Execute(context.Background(), map[string]interface{}{"path": path}, output))

	values := output.Values()
	assert.Equal(t, "hello world", values["content"])
	assert.Equal(t, int64(11), values["size"])
	assert.Equal(t, false, values["truncated"])
}

func TestReadFileTool_Truncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tool := NewReadFileTool()
	output := tools.NewOutputContext()
	input := map[string]interface{}{"path": path, "max_bytes": 5}
	require.NoError(t, tool.Execute(context.Background(), input, output))

	values := output.Values()
	assert.Equal(t, "hello", values["content"])
	assert.Equal(t, int64(11), values["size"])
	assert.Equal(t, true, values["truncated"])
}

func TestReadFileTool_MissingFile(t *testing.T) {
	tool := NewReadFileTool()
	output := tools.NewOutputContext()

	err := tool.Execute(context.Background(), map[string]interface{}{"path": filepath.Join(t.TempDir(), "absent.txt")}, output)
	require.Error(t, err)
}

func TestReadFileTool_RejectsDirectory(t *testing.T) {
	tool := NewReadFileTool()
	output := tools.NewOutputContext()

	err := tool.Execute(context.Background(), map[string]interface{}{"path": t.TempDir()}, output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestNumberValue(t *testing.T) {
	assert.Equal(t, 3.5, numberValue(3.5))
	assert.Equal(t, 30.0, numberValue(30))
	assert.Equal(t, 7.0, numberValue(int64(7)))
	assert.Equal(t, 0.0, numberValue("not a number"))
	assert.Equal(t, 0.0, numberValue(nil))
}
