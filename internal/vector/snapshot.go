// Package vector holds the durable nearest-neighbor index over embedded pages.
//
// A Snapshot is an immutable set of index entries. The Store publishes exactly one
// current snapshot through an atomic pointer and replaces it only with a value that
// was durably persisted first.
package vector

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// Snapshot is an immutable, ordered collection of index entries sharing one dimension.
type Snapshot struct {
	dims    int
	entries []models.IndexEntry
	norms   []float64
}

// ScoredEntry is a nearest-neighbor hit. Position is the entry's insertion index.
type ScoredEntry struct {
	Page     models.PageRecord
	Score    float64
	Position int
}

// Empty returns the snapshot of a store that has never been populated.
func Empty() *Snapshot {
	return &Snapshot{}
}

// IsEmpty reports whether the snapshot holds no entries.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.entries) == 0
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Dims returns the vector dimension, or 0 for an empty snapshot.
func (s *Snapshot) Dims() int {
	if s == nil {
		return 0
	}
	return s.dims
}

// Entries returns a copy of the entry list in insertion order.
func (s *Snapshot) Entries() []models.IndexEntry {
	if s == nil {
		return nil
	}
	return slices.Clone(s.entries)
}

// DocumentIDs returns the distinct document ids in first-seen order.
func (s *Snapshot) DocumentIDs() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range s.entries {
		if _, ok := seen[e.Page.DocumentID]; ok {
			continue
		}
		seen[e.Page.DocumentID] = struct{}{}
		ids = append(ids, e.Page.DocumentID)
	}
	return ids
}

// Merge returns a new snapshot holding prior's entries followed by entries in input order.
// prior is never modified. Every vector must match prior's dimension, or the first new
// vector's dimension when prior is empty.
func Merge(prior *Snapshot, entries []models.IndexEntry) (*Snapshot, error) {
	dims := prior.Dims()
	if prior.IsEmpty() {
		dims = 0
		if len(entries) > 0 {
			dims = len(entries[0].Vector)
		}
	}
	if len(entries) > 0 && dims == 0 {
		return nil, fmt.Errorf("%w: empty vector", models.ErrDimensionMismatch)
	}
	for i, e := range entries {
		if len(e.Vector) != dims {
			return nil, fmt.Errorf("%w: entry %d (%s page %d) has %d dimensions, index has %d",
				models.ErrDimensionMismatch, i, e.Page.DocumentID, e.Page.PageNumber, len(e.Vector), dims)
		}
	}

	n := prior.Len() + len(entries)
	next := &Snapshot{
		dims:    dims,
		entries: make([]models.IndexEntry, 0, n),
		norms:   make([]float64, 0, n),
	}
	if prior != nil {
		next.entries = append(next.entries, prior.entries...)
		next.norms = append(next.norms, prior.norms...)
	}
	for _, e := range entries {
		vec := slices.Clone(e.Vector)
		next.entries = append(next.entries, models.IndexEntry{Vector: vec, Page: e.Page})
		next.norms = append(next.norms, L2Norm(vec))
	}
	return next, nil
}

// NearestNeighbors returns up to k entries by descending cosine similarity to query.
// Equal scores keep insertion order. An empty snapshot yields an empty slice.
func (s *Snapshot) NearestNeighbors(query []float32, k int) ([]ScoredEntry, error) {
	if s.IsEmpty() || k <= 0 {
		return []ScoredEntry{}, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), s.dims)
	}

	qNorm := L2Norm(query)
	scored := make([]ScoredEntry, len(s.entries))
	for i, e := range s.entries {
		scored[i] = ScoredEntry{
			Page:     e.Page,
			Score:    cosine(query, e.Vector, qNorm, s.norms[i]),
			Position: i,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k:k], nil
}

// Equal reports whether a and b hold the same entries in the same order.
func Equal(a, b *Snapshot) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.IsEmpty() {
		return true
	}
	if a.dims != b.dims {
		return false
	}
	for i := range a.entries {
		x, y := a.entries[i], b.entries[i]
		if x.Page != y.Page || !slices.Equal(x.Vector, y.Vector) {
			return false
		}
	}
	return true
}
