package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIGenerator uses the Chat Completions API of OpenAI or any compatible server such as Ollama.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int
	name      string
}

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	Name      string // label used in errors; defaults to "openai"
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIGenerator creates a chat-completions generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai generator: model is required")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		name:      cfg.Name,
	}, nil
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.maxTokens))
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(ctx, g.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", classify(ctx, g.name, fmt.Errorf("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}
