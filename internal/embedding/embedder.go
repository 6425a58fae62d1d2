// Package embedding turns text into fixed-dimension vectors through a configured provider.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces vector embeddings for text.
// EmbedBatch returns exactly one vector per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// EmbedOne embeds a single text through e.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: provider returned %d vectors for 1 input", models.ErrEmbeddingUnavailable, len(vecs))
	}
	return vecs[0], nil
}

// classify maps a provider failure onto ErrUpstreamTimeout or ErrEmbeddingUnavailable.
// Errors already carrying one of the sentinels pass through unchanged.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrUpstreamTimeout) || errors.Is(err, models.ErrEmbeddingUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", provider, models.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, models.ErrEmbeddingUnavailable, err)
}

// checkCount verifies the provider answered one vector per input.
func checkCount(provider string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s: %w: expected %d vectors, got %d", provider, models.ErrEmbeddingUnavailable, want, got)
	}
	return nil
}

// classifyCtx prefers the context's own error so deadlines surface as ErrUpstreamTimeout
// even when the SDK hides them behind its own error type.
func classifyCtx(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return classify(provider, err)
}
