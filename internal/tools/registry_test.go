package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTool struct {
	BaseTool
}

func (s *staticTool) Execute(ctx context.Context, input map[string]interface{}, output *OutputContext) error {
	output.Set("ok", true)
	return nil
}

func newStaticTool(name, category string) *staticTool {
	return &staticTool{BaseTool: BaseTool{
		ToolName:        name,
		ToolDescription: name + " for tests",
		ToolCategory:    category,
		ToolVersion:     "1.0.0",
	}}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	tool := newStaticTool("fetch", "network")
	require.NoError(t, registry.Register(tool))

	got, ok := registry.Get("fetch")
	require.True(t, ok)
	assert.Equal(t, "fetch", got.Name())
	assert.Equal(t, "network", got.Category())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStaticTool("fetch", "network")))

	err := registry.Register(newStaticTool("fetch", "network"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register(newStaticTool("", "misc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStaticTool("fetch", "network")))

	registry.Unregister("fetch")
	_, ok := registry.Get("fetch")
	assert.False(t, ok)

	// Re-registering after removal must succeed.
	require.NoError(t, registry.Register(newStaticTool("fetch", "network")))

	// Removing an unknown name is a no-op.
	registry.Unregister("never-there")
}

func TestRegistry_ListSortedByName(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Register(newStaticTool(name, "misc")))
	}

	listed := registry.List()
	require.Len(t, listed, 3)
	assert.Equal(t, "alpha", listed[0].Name())
	assert.Equal(t, "mid", listed[1].Name())
	assert.Equal(t, "zeta", listed[2].Name())
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Names())

	for _, name := range []string{"write", "read", "echo"} {
		require.NoError(t, registry.Register(newStaticTool(name, "misc")))
	}
	assert.Equal(t, []string{"echo", "read", "write"}, registry.Names())
}
