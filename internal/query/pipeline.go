// Package query answers questions from retrieved pages with a generative model.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/citation"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Retriever returns the pages relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, threshold float64) ([]models.RelevanceMatch, error)
}

// Config holds the retrieval parameters and the citation base URL.
type Config struct {
	TopK      int
	Threshold float64
	BaseURL   string
	// Timeout bounds a whole Answer call; zero means no extra deadline.
	Timeout time.Duration
}

// Pipeline runs retrieve, prompt, generate.
type Pipeline struct {
	retriever Retriever
	generator generation.Generator
	cfg       Config
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a query pipeline.
func NewPipeline(retriever Retriever, generator generation.Generator, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{retriever: retriever, generator: generator, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer retrieves context for q, asks the generator and returns its text verbatim with
// citations aligned to the prompt's reference numbers.
func (p *Pipeline) Answer(ctx context.Context, q string) (*models.Answer, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", models.ErrInvalidArgument)
	}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	if p.logger != nil {
		p.logger.Debug("handling query", zap.String("query", utils.Truncate(q, 17)))
	}

	start := time.Now()
	matches, err := p.retriever.Retrieve(ctx, q, p.cfg.TopK, p.cfg.Threshold)
	if err != nil {
		return nil, timeoutAware(fmt.Errorf("retrieval failed: %w", err))
	}
	retrieveTime := time.Since(start)

	prompt := BuildPrompt(q, matches)
	genStart := time.Now()
	response, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, timeoutAware(fmt.Errorf("generation failed: %w", err))
	}

	citations := make([]models.Citation, len(matches))
	for i, m := range matches {
		citations[i] = citation.FromPage(p.cfg.BaseURL, m.Page)
	}

	if p.logger != nil {
		p.logger.Info("query answered",
			zap.Int("references", len(matches)),
			zap.Duration("retrieval", retrieveTime),
			zap.Duration("generation", time.Since(genStart)))
	}
	return &models.Answer{Response: response, Citations: citations}, nil
}

// timeoutAware makes sure a bare deadline error also carries ErrUpstreamTimeout.
func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrUpstreamTimeout) {
		return fmt.Errorf("%w: %w", models.ErrUpstreamTimeout, err)
	}
	return err
}
