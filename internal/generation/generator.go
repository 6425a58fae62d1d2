// Package generation sends a finished prompt to a generative language model and returns its text.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Generator produces a text completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// classify maps a backend failure onto ErrUpstreamTimeout or ErrGenerationUnavailable.
func classify(ctx context.Context, backend string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	switch {
	case errors.Is(err, models.ErrUpstreamTimeout), errors.Is(err, models.ErrGenerationUnavailable):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", backend, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", backend, models.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %w", backend, models.ErrGenerationUnavailable, err)
	}
}
