package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"golang.org/x/time/rate"
)

// RateLimited waits on a token bucket before each provider call.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second to inner with the given burst.
func NewRateLimited(inner Embedder, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// EmbedBatch waits for a token, then calls the inner embedder.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot be met.
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return nil, fmt.Errorf("rate limiter: %w: %w", models.ErrUpstreamTimeout, err)
		}
		return nil, classify("rate limiter", err)
	}
	return r.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the inner embedder's dimension.
func (r *RateLimited) Dimensions() int { return r.inner.Dimensions() }

// Close closes the inner embedder.
func (r *RateLimited) Close() error { return r.inner.Close() }
