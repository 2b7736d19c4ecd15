package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name      string
	available bool
	reply     string
	err       error
}

func (f *fakeAdapter) Name() string              { return f.name }
func (f *fakeAdapter) SupportedModels() []string { return []string{f.name + "-large"} }
func (f *fakeAdapter) Available() bool           { return f.available }

func (f *fakeAdapter) Invoke(ctx context.Context, req *Request) (string, error) {
	return f.reply, f.err
}

func (f *fakeAdapter) InvokeAsync(ctx context.Context, req *Request) <-chan AsyncResult {
	return RunAsync(ctx, f, req)
}

func TestRegistry_RegisterAndFind(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeAdapter{name: "alpha", available: true}))

	adapter, err := registry.Find("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", adapter.Name())

	_, err = registry.Find("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeAdapter{name: "alpha"}))

	err := registry.Register(&fakeAdapter{name: "alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register(&fakeAdapter{name: ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRegistry_FirstRegisteredIsDefault(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.GetDefault()
	require.Error(t, err, "empty registry has no default")

	require.NoError(t, registry.Register(&fakeAdapter{name: "first"}))
	require.NoError(t, registry.Register(&fakeAdapter{name: "second"}))

	adapter, err := registry.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "first", adapter.Name())
}

func TestRegistry_SetDefault(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeAdapter{name: "first"}))
	require.NoError(t, registry.Register(&fakeAdapter{name: "second"}))

	require.NoError(t, registry.SetDefault("second"))
	adapter, err := registry.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "second", adapter.Name())

	err = registry.SetDefault("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha"} {
		require.NoError(t, registry.Register(&fakeAdapter{name: name}))
	}
	assert.Equal(t, []string{"alpha", "zeta"}, registry.Names())
}

func TestRunAsync_DeliversOnce(t *testing.T) {
	adapter := &fakeAdapter{name: "fast", reply: "pong"}
	ch := adapter.InvokeAsync(context.Background(), &Request{Prompt: "ping"})

	select {
	case result := <-ch:
		require.NoError(t, result.Err)
		assert.Equal(t, "pong", result.Text)
	case <-time.After(time.Second):
		t.Fatal("async result never arrived")
	}

	_, open := <-ch
	assert.False(t, open, "channel must close after the single delivery")
}

func TestRunAsync_PropagatesError(t *testing.T) {
	adapter := &fakeAdapter{name: "flaky", err: errors.New("quota exceeded")}
	ch := adapter.InvokeAsync(context.Background(), &Request{Prompt: "ping"})

	result := <-ch
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "quota exceeded")
}

func TestNewAnthropicAdapter_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_KEY", "")

	_, err := NewAnthropicAdapter(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewAnthropicAdapter_KeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-000")

	adapter, err := NewAnthropicAdapter(nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", adapter.Name())
	assert.True(t, adapter.Available())
	assert.NotEmpty(t, adapter.SupportedModels())
}

func TestNewOpenAIAdapter_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_TOKEN", "")

	_, err := NewOpenAIAdapter(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewOpenAIAdapter_ConfigOverridesEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	adapter, err := NewOpenAIAdapter(&OpenAIConfig{APIKey: "sk-explicit", DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.True(t, adapter.Available())
	assert.Equal(t, "sk-explicit", adapter.config.APIKey)
	assert.Equal(t, "gpt-4o-mini", adapter.config.DefaultModel)
}

func TestNewBedrockAdapter_Defaults(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")

	adapter := NewBedrockAdapter(nil)
	assert.Equal(t, "bedrock", adapter.Name())
	assert.Equal(t, "us-east-1", adapter.config.Region)
	assert.NotEmpty(t, adapter.config.DefaultModel)
}

func TestAnthropicAPIKeyFromEnv_ProbesAlternates(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "  sk-ant-alt  ")
	t.Setenv("ANTHROPIC_KEY", "")

	assert.Equal(t, "sk-ant-alt", AnthropicAPIKeyFromEnv())
}
