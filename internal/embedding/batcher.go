package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batcher splits large inputs into chunks of at most batchSize texts and embeds up to
// concurrency chunks at a time. Any chunk failure fails the whole call.
type Batcher struct {
	inner       Embedder
	batchSize   int
	concurrency int
}

// NewBatcher wraps inner. Non-positive sizes fall back to 32 texts per chunk and one chunk at a time.
func NewBatcher(inner Embedder, batchSize, concurrency int) *Batcher {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{inner: inner, batchSize: batchSize, concurrency: concurrency}
}

// EmbedBatch embeds texts chunk by chunk and reassembles vectors in input order.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.inner.EmbedBatch(ctx, texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.inner.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if err := checkCount("batcher", end-start, len(vecs)); err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (b *Batcher) Dimensions() int { return b.inner.Dimensions() }

// Close closes the inner embedder.
func (b *Batcher) Close() error { return b.inner.Close() }
