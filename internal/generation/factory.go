package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
)

const defaultOllamaURL = "http://localhost:11434/v1"

// New builds the generator selected by cfg.Kind.
func New(ctx context.Context, cfg config.GenerationConfig) (Generator, error) {
	apiKey := config.ResolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.Endpoint,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "ollama":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOllamaURL
		}
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIGenerator(OpenAIConfig{
			Name:      "ollama",
			APIKey:    apiKey,
			BaseURL:   endpoint,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "gemini":
		return NewGeminiGenerator(ctx, apiKey, cfg.Model, cfg.MaxTokens)
	case "anthropic":
		return NewAnthropicGenerator(apiKey, cfg.Endpoint, cfg.Model, cfg.MaxTokens)
	case "mock":
		return NewMockGenerator("mock answer"), nil
	default:
		return nil, fmt.Errorf("unsupported generation kind %q (supported: openai, ollama, gemini, anthropic, mock)", cfg.Kind)
	}
}
