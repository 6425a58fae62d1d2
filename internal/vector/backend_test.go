package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_ReadMissing(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "nested", "pages.kidx"))
	require.NoError(t, err)
	_, err = b.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileBackend_WriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx", "pages.kidx")
	b, err := NewFileBackend(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte("one")))
	require.NoError(t, b.Write(ctx, []byte("two")))
	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
	assert.Equal(t, path, b.Location())
}

func TestFileBackend_CancelledWriteLeavesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.kidx")
	b, err := NewFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Write(context.Background(), []byte("prior")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, b.Write(ctx, []byte("next")))
	got, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("prior"), got)
}

func TestFileBackend_Remove(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "pages.kidx"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, b.Remove(ctx), "removing missing file is fine")
	require.NoError(t, b.Write(ctx, []byte("x")))
	require.NoError(t, b.Remove(ctx))
	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestNewFileBackend_EmptyPath(t *testing.T) {
	_, err := NewFileBackend("")
	assert.Error(t, err)
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_, err := b.Read(ctx)
	assert.ErrorIs(t, err, ErrNotExist)

	data := []byte("abc")
	require.NoError(t, b.Write(ctx, data))
	data[0] = 'z'
	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	require.NoError(t, b.Remove(ctx))
	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, ErrNotExist)
}

// TestMinioBackend_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioBackend_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-kotae"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}
	b := NewMinioBackendWithClient(client, bucket, "it/pages.kidx")
	require.NoError(t, b.Remove(ctx))

	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, ErrNotExist)

	store := NewStore(b)
	created, total, err := store.MergeAndPersist(ctx, sampleEntries())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, total)

	reloaded, err := LoadSnapshot(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.Equal(t, "s3://test-kotae/it/pages.kidx", b.Location())
	require.NoError(t, b.Remove(ctx))
}
