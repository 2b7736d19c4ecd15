package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// anthropicMaxTokens maps model prefixes to the largest completion the
// model accepts, used when a step does not set max_tokens itself.
var anthropicMaxTokens = map[string]int{
	"claude-opus-4":     64000,
	"claude-sonnet-4":   64000,
	"claude-3-7-sonnet": 64000,
	"claude-3-5-sonnet": 8192,
	"claude-3-5-haiku":  8192,
	"claude-3-opus":     4096,
	"claude-3-haiku":    4096,
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultAnthropicConfig returns the adapter defaults, honoring the
// SKILLET_ANTHROPIC_BASE_URL override.
func DefaultAnthropicConfig() *AnthropicConfig {
	config := &AnthropicConfig{
		BaseURL:      "https://api.anthropic.com",
		DefaultModel: "claude-sonnet-4-0",
		Timeout:      60 * time.Second,
	}
	if baseURL := os.Getenv("SKILLET_ANTHROPIC_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	return config
}

// AnthropicAdapter serves prompt steps through Anthropic's Messages API.
type AnthropicAdapter struct {
	client *anthropic.Client
	config *AnthropicConfig
}

// NewAnthropicAdapter creates the adapter, resolving the API key from the
// environment when the config does not carry one.
func NewAnthropicAdapter(config *AnthropicConfig) (*AnthropicAdapter, error) {
	if config == nil {
		config = DefaultAnthropicConfig()
	} else {
		defaults := DefaultAnthropicConfig()
		if config.BaseURL == "" {
			config.BaseURL = defaults.BaseURL
		}
		if config.DefaultModel == "" {
			config.DefaultModel = defaults.DefaultModel
		}
		if config.Timeout == 0 {
			config.Timeout = defaults.Timeout
		}
	}

	if config.APIKey == "" {
		config.APIKey = AnthropicAPIKeyFromEnv()
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithHTTPClient(&http.Client{
			Timeout: config.Timeout,
		}),
	)

	log.Info().
		Str("base_url", config.BaseURL).
		Str("default_model", config.DefaultModel).
		Msg("Anthropic provider initialized")

	return &AnthropicAdapter{
		client: &client,
		config: config,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) SupportedModels() []string {
	return []string{
		"claude-opus-4-0",
		"claude-sonnet-4-0",
		"claude-3-7-sonnet-latest",
		"claude-3-5-haiku-latest",
	}
}

func (a *AnthropicAdapter) Available() bool {
	return a.config.APIKey != ""
}

// Invoke sends a single-turn prompt and returns the concatenated text
// blocks of the response.
func (a *AnthropicAdapter) Invoke(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}

	maxTokens := 8192
	for prefix, tokens := range anthropicMaxTokens {
		if strings.HasPrefix(model, prefix) {
			maxTokens = tokens
			break
		}
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	log.Debug().
		Str("model", model).
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Msg("Anthropic API call completed")

	var text strings.Builder
	for _, block := range response.Content {
		switch block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (a *AnthropicAdapter) InvokeAsync(ctx context.Context, req *Request) <-chan AsyncResult {
	return RunAsync(ctx, a, req)
}

// AnthropicAPIKeyFromEnv probes the environment variable names an
// Anthropic key is commonly stored under.
func AnthropicAPIKeyFromEnv() string {
	for _, envVar := range []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "ANTHROPIC_KEY"} {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key
		}
	}
	return ""
}
