// Package storage persists the document catalog.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a catalog entry does not exist.
var ErrNotFound = errors.New("document not found")

// Catalog records which documents were uploaded and how their ingestion went.
// It is bookkeeping only; the vector store is the source of truth for indexed pages.
type Catalog interface {
	Upsert(ctx context.Context, doc *models.DocumentRecord) error
	Get(ctx context.Context, id string) (*models.DocumentRecord, error)
	List(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error)

	// Stats; an empty status counts every document.
	Count(ctx context.Context, status string) (int64, error)
	TotalSize(ctx context.Context, status string) (int64, error)

	Clear(ctx context.Context) error
	Close() error
}
