package models

import "errors"

var (
	// ErrInvalidArgument is returned for empty ingestion batches, non-positive k and empty queries.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmbeddingUnavailable is returned when the embedding backend fails or is unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrGenerationUnavailable is returned when the generative backend fails or is unreachable.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrUpstreamTimeout is returned when a call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrDimensionMismatch guards the index against vectors of a different dimensionality.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrStoreBusy is returned when a merge is already in flight and the policy rejects waiting.
	ErrStoreBusy = errors.New("store busy")
	// ErrQueueFull is returned when the ingestion queue cannot accept more work.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrStateDiverged is returned when durable state no longer matches the published snapshot
	// after a failed persist.
	ErrStateDiverged = errors.New("durable state diverged")
)
