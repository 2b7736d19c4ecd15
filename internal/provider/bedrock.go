package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog/log"
)

// BedrockConfig configures the Amazon Bedrock adapter. Credentials come
// from the standard AWS chain; only region and profile are selected here.
type BedrockConfig struct {
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	DefaultModel string `yaml:"default_model"`
}

// DefaultBedrockConfig returns the adapter defaults, honoring the usual
// AWS region environment variables.
func DefaultBedrockConfig() *BedrockConfig {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return &BedrockConfig{
		Region:       region,
		DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
	}
}

// BedrockAdapter serves prompt steps through the Bedrock Converse API.
// The client is built on first use since loading the AWS config requires
// a context.
type BedrockAdapter struct {
	config *BedrockConfig

	mu     sync.Mutex
	client *bedrockruntime.Client
}

// NewBedrockAdapter creates the adapter. Construction never touches the
// network; credential problems surface on the first Invoke.
func NewBedrockAdapter(config *BedrockConfig) *BedrockAdapter {
	if config == nil {
		config = DefaultBedrockConfig()
	} else {
		defaults := DefaultBedrockConfig()
		if config.Region == "" {
			config.Region = defaults.Region
		}
		if config.DefaultModel == "" {
			config.DefaultModel = defaults.DefaultModel
		}
	}
	return &BedrockAdapter{config: config}
}

func (a *BedrockAdapter) Name() string { return "bedrock" }

func (a *BedrockAdapter) SupportedModels() []string {
	return []string{
		"anthropic.claude-3-5-sonnet-20241022-v2:0",
		"anthropic.claude-3-5-haiku-20241022-v1:0",
		"amazon.nova-pro-v1:0",
		"meta.llama3-1-70b-instruct-v1:0",
	}
}

// Available reports whether anything in the AWS credential chain looks
// configured. It cannot prove the credentials work; Invoke decides that.
func (a *BedrockAdapter) Available() bool {
	for _, envVar := range []string{
		"AWS_ACCESS_KEY_ID",
		"AWS_PROFILE",
		"AWS_ROLE_ARN",
		"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI",
	} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(filepath.Join(home, ".aws", "credentials")); err == nil {
			return true
		}
	}
	return false
}

func (a *BedrockAdapter) ensureClient(ctx context.Context) (*bedrockruntime.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if a.config.Region != "" {
		opts = append(opts, config.WithRegion(a.config.Region))
	}
	if a.config.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(a.config.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	a.client = bedrockruntime.NewFromConfig(awsCfg)
	return a.client, nil
}

// Invoke sends a single-turn prompt through Converse and returns the
// concatenated text blocks of the response message.
func (a *BedrockAdapter) Invoke(ctx context.Context, req *Request) (string, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil {
		inference := &types.InferenceConfiguration{}
		if req.Temperature != nil {
			inference.Temperature = aws.Float32(float32(*req.Temperature))
		}
		if req.MaxTokens != nil {
			inference.MaxTokens = aws.Int32(int32(*req.MaxTokens))
		}
		if req.TopP != nil {
			inference.TopP = aws.Float32(float32(*req.TopP))
		}
		input.InferenceConfig = inference
	}

	response, err := client.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("bedrock Converse call failed: %w", err)
	}

	if response.Usage != nil {
		log.Debug().
			Str("model", model).
			Int32("input_tokens", aws.ToInt32(response.Usage.InputTokens)).
			Int32("output_tokens", aws.ToInt32(response.Usage.OutputTokens)).
			Msg("Bedrock Converse call completed")
	}

	message, ok := response.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock returned no message output")
	}

	var text strings.Builder
	for _, block := range message.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(textBlock.Value)
		}
	}
	return text.String(), nil
}

func (a *BedrockAdapter) InvokeAsync(ctx context.Context, req *Request) <-chan AsyncResult {
	return RunAsync(ctx, a, req)
}
