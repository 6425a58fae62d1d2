package vector

import (
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	snap, err := Merge(Empty(), []models.IndexEntry{
		entry("reports/a.pdf", 1, 0.25, -0.5, 1),
		{Vector: []float32{1, 2, 3}, Page: models.PageRecord{DocumentID: "b.pdf", PageNumber: 12, Text: "日本語のテキスト\nline two"}},
	})
	require.NoError(t, err)

	data, err := EncodeBytes(snap)
	require.NoError(t, err)
	got, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.True(t, Equal(snap, got))
	assert.Equal(t, 3, got.Dims())

	res, err := got.NearestNeighbors([]float32{1, 2, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", res[0].Page.DocumentID)
}

func TestCodec_Empty(t *testing.T) {
	data, err := EncodeBytes(Empty())
	require.NoError(t, err)
	got, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCodec_Corrupt(t *testing.T) {
	snap, err := Merge(Empty(), []models.IndexEntry{entry("a", 1, 1, 2)})
	require.NoError(t, err)
	good, err := EncodeBytes(snap)
	require.NoError(t, err)

	tests := map[string][]byte{
		"empty":       {},
		"bad magic":   append([]byte("NOPE"), good[4:]...),
		"bad version": append(append([]byte{}, good[:4]...), 9, 0, 0, 0),
		"truncated":   good[:10],
		"garbage":     append(append([]byte{}, good[:8]...), []byte("not zstd at all")...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBytes(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
