package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. Each lowercased word is hashed into one
// of the dimensions, so texts sharing words get similar vectors and identical texts get identical ones.
type MockEmbedder struct {
	dimensions int

	mu     sync.Mutex
	failOn map[string]error
	delay  time.Duration

	calls atomic.Int64
	texts atomic.Int64
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, failOn: make(map[string]error)}
}

// FailOn makes any batch containing text fail with err.
// A nil err fails with ErrEmbeddingUnavailable.
func (e *MockEmbedder) FailOn(text string, err error) {
	if err == nil {
		err = fmt.Errorf("mock: %w: refused %q", models.ErrEmbeddingUnavailable, text)
	}
	e.mu.Lock()
	e.failOn[text] = err
	e.mu.Unlock()
}

// SetDelay makes every call wait d or until ctx is done.
func (e *MockEmbedder) SetDelay(d time.Duration) {
	e.mu.Lock()
	e.delay = d
	e.mu.Unlock()
}

// Calls returns the number of EmbedBatch invocations.
func (e *MockEmbedder) Calls() int { return int(e.calls.Load()) }

// TextsEmbedded returns the total number of texts passed to EmbedBatch.
func (e *MockEmbedder) TextsEmbedded() int { return int(e.texts.Load()) }

// Vector returns the deterministic embedding for text.
func (e *MockEmbedder) Vector(text string) []float32 {
	emb := make([]float32, e.dimensions)
	for _, w := range words(text) {
		emb[hashWord(w)%uint32(e.dimensions)]++
	}
	utils.NormalizeL2(emb)
	return emb
}

// EmbedBatch returns Vector for each text, or the injected failure.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))

	e.mu.Lock()
	delay := e.delay
	e.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, classify("mock", ctx.Err())
		}
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		e.mu.Lock()
		err := e.failOn[text]
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		embeddings[i] = e.Vector(text)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
