package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSized(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, n), 0o644))
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	uploads := filepath.Join(dir, "uploads")
	writeSized(t, db, 100)
	writeSized(t, filepath.Join(uploads, "a.pdf"), 40)
	writeSized(t, filepath.Join(uploads, "nested", "b.txt"), 2)

	t.Run("files and directories", func(t *testing.T) {
		n, err := DiskUsageBytes(db, uploads)
		require.NoError(t, err)
		assert.Equal(t, int64(142), n)
	})

	t.Run("missing and empty paths count as zero", func(t *testing.T) {
		n, err := DiskUsageBytes("", filepath.Join(dir, "absent"), db)
		require.NoError(t, err)
		assert.Equal(t, int64(100), n)
	})

	t.Run("no paths", func(t *testing.T) {
		n, err := DiskUsageBytes()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
