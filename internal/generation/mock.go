package generation

import (
	"context"
	"sync"
)

// MockGenerator records prompts and answers with a fixed response or a function of the prompt.
type MockGenerator struct {
	mu       sync.Mutex
	prompts  []string
	Response string
	Respond  func(prompt string) (string, error)
}

// NewMockGenerator returns a generator that always answers response.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response}
}

// Generate records prompt and returns the configured answer.
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify(ctx, "mock", err)
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	respond := g.Respond
	g.mu.Unlock()
	if respond != nil {
		return respond(prompt)
	}
	return g.Response, nil
}

// Prompts returns every prompt received so far.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// LastPrompt returns the most recent prompt, or "" when none was received.
func (g *MockGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}
