package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultOpenAIConfig returns the adapter defaults, honoring the
// SKILLET_OPENAI_BASE_URL override.
func DefaultOpenAIConfig() *OpenAIConfig {
	config := &OpenAIConfig{
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
	}
	if baseURL := os.Getenv("SKILLET_OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	return config
}

// OpenAIAdapter serves prompt steps through OpenAI's chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
	config *OpenAIConfig
}

// NewOpenAIAdapter creates the adapter, resolving the API key from the
// environment when the config does not carry one.
func NewOpenAIAdapter(config *OpenAIConfig) (*OpenAIAdapter, error) {
	if config == nil {
		config = &OpenAIConfig{}
	}
	defaults := DefaultOpenAIConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}

	if config.APIKey == "" {
		config.APIKey = OpenAIAPIKeyFromEnv()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(config.MaxRetries),
	)

	return &OpenAIAdapter{
		client: &client,
		config: config,
	}, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) SupportedModels() []string {
	return []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "o3-mini"}
}

func (a *OpenAIAdapter) Available() bool {
	return a.config.APIKey != ""
}

// Invoke sends a single-turn prompt and returns the first choice's text.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
		N:        openai.Int(1),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	response, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create OpenAI completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	log.Debug().
		Str("model", model).
		Int64("prompt_tokens", response.Usage.PromptTokens).
		Int64("completion_tokens", response.Usage.CompletionTokens).
		Msg("OpenAI API call completed")

	return response.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) InvokeAsync(ctx context.Context, req *Request) <-chan AsyncResult {
	return RunAsync(ctx, a, req)
}

// OpenAIAPIKeyFromEnv probes the environment variable names an OpenAI key
// is commonly stored under.
func OpenAIAPIKeyFromEnv() string {
	for _, envVar := range []string{"OPENAI_API_KEY", "OPENAI_KEY", "OPENAI_TOKEN"} {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	return ""
}
