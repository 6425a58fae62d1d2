package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openhermes", body.Model)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "the prompt", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"openhermes",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Blue (Ref 1)."}}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "openhermes"})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "Blue (Ref 1).", out)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"down"}}`, http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"})
		require.NoError(t, err)
		_, err = g.Generate(context.Background(), "p")
		assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = g.Generate(ctx, "p")
		assert.ErrorIs(t, err, models.ErrUpstreamTimeout)
	})
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator("k", srv.URL+"/", "claude-test", 0)
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator("fixed")
	assert.Equal(t, "", g.LastPrompt())
	out, err := g.Generate(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, "fixed", out)

	g.Respond = func(p string) (string, error) { return "echo: " + p, nil }
	out, err = g.Generate(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "echo: two", out)
	assert.Equal(t, []string{"one", "two"}, g.Prompts())
	assert.Equal(t, "two", g.LastPrompt())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, classify(ctx, "x", errors.New("refused")), models.ErrGenerationUnavailable)
	assert.ErrorIs(t, classify(ctx, "x", context.DeadlineExceeded), models.ErrUpstreamTimeout)

	expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
	defer cancel()
	<-expired.Done()
	assert.ErrorIs(t, classify(expired, "x", errors.New("opaque sdk error")), models.ErrUpstreamTimeout)
}

func TestNew(t *testing.T) {
	g, err := New(context.Background(), config.GenerationConfig{Kind: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockGenerator{}, g)

	g, err = New(context.Background(), config.GenerationConfig{Kind: "ollama", Model: "openhermes"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	for _, cfg := range []config.GenerationConfig{
		{Kind: "gpt2"},
		{Kind: "anthropic", Model: "claude"},
		{Kind: "gemini", Model: "gemini-2.0-flash"},
		{Kind: "openai"},
	} {
		_, err := New(context.Background(), cfg)
		assert.Error(t, err, cfg.Kind)
	}
}
