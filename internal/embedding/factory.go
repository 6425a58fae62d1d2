package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
)

const defaultOllamaURL = "http://localhost:11434/v1"

// New builds the embedder selected by cfg.Kind and wraps it with the configured
// rate limiting, chunked batching and caching, innermost first.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	base, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var e Embedder = base
	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimited(e, cfg.RequestsPerSecond, cfg.Concurrency)
	}
	if cfg.BatchSize > 0 {
		e = NewBatcher(e, cfg.BatchSize, cfg.Concurrency)
	}
	if cfg.CacheSize > 0 {
		e = NewCached(e, cfg.CacheSize)
	}
	return e, nil
}

func newProvider(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	apiKey := config.ResolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "ollama":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOllamaURL
		}
		if apiKey == "" {
			// Ollama ignores the key but the client sends one.
			apiKey = "ollama"
		}
		return NewOpenAIEmbedder(OpenAIConfig{
			Name:       "ollama",
			APIKey:     apiKey,
			BaseURL:    endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "gemini":
		return NewGeminiEmbedder(ctx, apiKey, cfg.Model, cfg.Dimensions)
	case "onnx":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("onnx embedder: model_path is required")
		}
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding kind %q (supported: openai, ollama, gemini, onnx, mock)", cfg.Kind)
	}
}
