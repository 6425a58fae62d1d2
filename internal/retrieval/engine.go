// Package retrieval finds the pages most relevant to a query.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// SnapshotSource yields the currently published index snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*vector.Snapshot, error)
}

// Engine embeds queries and ranks index entries against them.
type Engine struct {
	store    SnapshotSource
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a retrieval engine over store.
func NewEngine(store SnapshotSource, embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{store: store, embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns up to k pages whose similarity to query is at least threshold, best first.
// The query is normalized with indexer.Preprocess before embedding, as page text is.
// A store that was never populated yields no matches without contacting the embedding provider.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]models.RelevanceMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if snap.IsEmpty() {
		return []models.RelevanceMatch{}, nil
	}

	// pages were embedded after the same cleanup
	start := time.Now()
	vec, err := embedding.EmbedOne(ctx, e.embedder, indexer.Preprocess(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embedTime := time.Since(start)

	hits, err := snap.NearestNeighbors(vec, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor search failed: %w", err)
	}
	matches := make([]models.RelevanceMatch, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		matches = append(matches, models.RelevanceMatch{Page: h.Page, Score: h.Score})
	}

	if e.logger != nil {
		e.logger.Debug("retrieved",
			zap.String("query", utils.Truncate(query, 17)),
			zap.Int("candidates", len(hits)),
			zap.Int("matches", len(matches)),
			zap.Duration("embed", embedTime),
			zap.Duration("total", time.Since(start)))
	}
	return matches, nil
}
