package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newEmbeddingServer(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/", Model: "test-embed", Dimensions: 2})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	e := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)
		assert.Equal(t, []string{"first", "second"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"test-embed",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	e := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	})
	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	e := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})
	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestOpenAIEmbedder_Timeout(t *testing.T) {
	e := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, models.ErrUpstreamTimeout)
}

func TestOpenAIEmbedder_Unreachable(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{Model: "m", Dimensions: 2, BaseURL: "http://127.0.0.1:1/"})
	require.NoError(t, err)
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
