// Package models defines core data structures for pages, index entries, matches and answers.
package models

import (
	"fmt"
	"time"
)

// PageRecord is one page of extracted text together with its source document identity.
// PageNumber is 1-based.
type PageRecord struct {
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Validate reports whether the record can be indexed.
func (p PageRecord) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("%w: page has empty document id", ErrInvalidArgument)
	}
	if p.PageNumber < 1 {
		return fmt.Errorf("%w: page number must be >= 1, got %d for %s", ErrInvalidArgument, p.PageNumber, p.DocumentID)
	}
	return nil
}

// IndexEntry pairs a page with its embedding. Entries are append-only.
type IndexEntry struct {
	Vector []float32  `json:"-"`
	Page   PageRecord `json:"page"`
}

// IngestResult summarizes one ingestion call.
type IngestResult struct {
	Pages        int  `json:"pages"`
	Documents    int  `json:"documents"`
	Created      bool `json:"created"` // true when the call created the store instead of merging into it
	TotalEntries int  `json:"total_entries"`
}

// Document statuses recorded in the catalog.
const (
	StatusQueued   = "queued"
	StatusIngested = "ingested"
	StatusFailed   = "failed"
)

// DocumentRecord is the catalog entry for an uploaded or ingested document.
type DocumentRecord struct {
	ID        string    `json:"id"`
	SizeBytes int64     `json:"size_bytes"`
	Pages     int       `json:"pages"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
