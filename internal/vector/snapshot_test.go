package vector

import (
	"math"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(doc string, page int, vec ...float32) models.IndexEntry {
	return models.IndexEntry{
		Vector: vec,
		Page:   models.PageRecord{DocumentID: doc, PageNumber: page, Text: doc + " text"},
	}
}

func TestEmpty(t *testing.T) {
	s := Empty()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dims())
	res, err := s.NearestNeighbors([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.NotNil(t, res)

	var nilSnap *Snapshot
	assert.True(t, nilSnap.IsEmpty())
}

func TestMerge_AppendsInOrder(t *testing.T) {
	first, err := Merge(Empty(), []models.IndexEntry{entry("a.pdf", 1, 1, 0), entry("a.pdf", 2, 0, 1)})
	require.NoError(t, err)
	second, err := Merge(first, []models.IndexEntry{entry("b.pdf", 1, 1, 1)})
	require.NoError(t, err)

	assert.Equal(t, 2, first.Len(), "prior snapshot is not modified")
	require.Equal(t, 3, second.Len())
	got := second.Entries()
	assert.Equal(t, "a.pdf", got[0].Page.DocumentID)
	assert.Equal(t, 2, got[1].Page.PageNumber)
	assert.Equal(t, "b.pdf", got[2].Page.DocumentID)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, second.DocumentIDs())
}

func TestMerge_CopiesVectors(t *testing.T) {
	vec := []float32{1, 0}
	snap, err := Merge(Empty(), []models.IndexEntry{{Vector: vec, Page: models.PageRecord{DocumentID: "a", PageNumber: 1}}})
	require.NoError(t, err)
	vec[0] = 42
	assert.Equal(t, float32(1), snap.Entries()[0].Vector[0])
}

func TestMerge_DimensionMismatch(t *testing.T) {
	base, err := Merge(Empty(), []models.IndexEntry{entry("a", 1, 1, 0, 0)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		prior   *Snapshot
		entries []models.IndexEntry
	}{
		{"against prior", base, []models.IndexEntry{entry("b", 1, 1, 0)}},
		{"within batch", Empty(), []models.IndexEntry{entry("b", 1, 1, 0), entry("b", 2, 1, 0, 0)}},
		{"empty vector", Empty(), []models.IndexEntry{entry("b", 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.prior, tt.entries)
			assert.ErrorIs(t, err, models.ErrDimensionMismatch)
		})
	}
	assert.Equal(t, 1, base.Len())
}

func TestNearestNeighbors_Ranking(t *testing.T) {
	snap, err := Merge(Empty(), []models.IndexEntry{
		entry("far", 1, 0, 1),
		entry("near", 1, 1, 0.1),
		entry("opposite", 1, -1, 0),
		entry("mid", 1, 1, 1),
	})
	require.NoError(t, err)

	res, err := snap.NearestNeighbors([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, "near", res[0].Page.DocumentID)
	assert.Equal(t, "mid", res[1].Page.DocumentID)
	assert.Equal(t, "far", res[2].Page.DocumentID)
	assert.Equal(t, "opposite", res[3].Page.DocumentID)
	assert.InDelta(t, -1.0, res[3].Score, 1e-9)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	for _, r := range res {
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.GreaterOrEqual(t, r.Score, -1.0)
	}

	top2, err := snap.NearestNeighbors([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, top2, 2)
}

func TestNearestNeighbors_TiesKeepInsertionOrder(t *testing.T) {
	snap, err := Merge(Empty(), []models.IndexEntry{
		entry("first", 1, 2, 0),
		entry("second", 1, 1, 0),
		entry("third", 1, 5, 0),
	})
	require.NoError(t, err)
	res, err := snap.NearestNeighbors([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{res[0].Position, res[1].Position, res[2].Position})
}

func TestNearestNeighbors_QueryDimensionMismatch(t *testing.T) {
	snap, err := Merge(Empty(), []models.IndexEntry{entry("a", 1, 1, 0)})
	require.NoError(t, err)
	_, err = snap.NearestNeighbors([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{3, 4}, []float32{6, 8}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 1}, []float32{-1, -1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 1}))
	assert.InDelta(t, 5.0, L2Norm([]float32{3, 4}), 1e-9)
	assert.False(t, math.IsNaN(CosineSimilarity(nil, nil)))
}

func TestEqual(t *testing.T) {
	a, _ := Merge(Empty(), []models.IndexEntry{entry("a", 1, 1, 0)})
	b, _ := Merge(Empty(), []models.IndexEntry{entry("a", 1, 1, 0)})
	c, _ := Merge(Empty(), []models.IndexEntry{entry("a", 2, 1, 0)})
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(a, Empty()))
	assert.True(t, Equal(Empty(), nil))
}
