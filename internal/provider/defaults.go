package provider

import "github.com/rs/zerolog/log"

// RegisterFromEnv registers every adapter whose credentials can be found
// in the environment and returns their names in registration order.
// Anthropic registers first and so becomes the default when present.
func RegisterFromEnv(registry *Registry) []string {
	var registered []string

	if AnthropicAPIKeyFromEnv() != "" {
		if adapter, err := NewAnthropicAdapter(nil); err == nil {
			if err := registry.Register(adapter); err == nil {
				registered = append(registered, adapter.Name())
			}
		}
	}

	if OpenAIAPIKeyFromEnv() != "" {
		if adapter, err := NewOpenAIAdapter(nil); err == nil {
			if err := registry.Register(adapter); err == nil {
				registered = append(registered, adapter.Name())
			}
		}
	}

	bedrock := NewBedrockAdapter(nil)
	if bedrock.Available() {
		if err := registry.Register(bedrock); err == nil {
			registered = append(registered, bedrock.Name())
		}
	}

	if len(registered) == 0 {
		log.Debug().Msg("no model provider credentials found in environment")
	}
	return registered
}
