package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotExist is returned by Backend.Read when no durable state has been written yet.
var ErrNotExist = errors.New("index state does not exist")

// Backend is the durable location of the encoded index. Write must replace prior state
// atomically: a concurrent Read observes either the old bytes or the new bytes.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
	Location() string
}

// Locker is implemented by backends that several processes may write to. Lock holds off
// other writers until unlock is called. With wait false a held lock fails with
// models.ErrStoreBusy instead of waiting.
type Locker interface {
	Lock(ctx context.Context, wait bool) (unlock func(), err error)
}

const lockRetryDelay = 50 * time.Millisecond

// FileBackend stores the index as a single local file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path. The parent directory is created on first write.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	return &FileBackend{path: path}, nil
}

// Read returns the file contents, or ErrNotExist if the file is absent.
func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}
	return data, nil
}

// Lock takes an advisory lock on a sibling ".lock" file, shared with every other
// FileBackend on the same path in this or another process.
func (b *FileBackend) Lock(ctx context.Context, wait bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	fl := flock.New(b.path + ".lock")
	var (
		ok  bool
		err error
	)
	if wait {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock index file: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: index file is locked by another writer", models.ErrStoreBusy)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Write replaces the file by writing a temp file in the same directory, syncing it and
// renaming it over the target. The directory is synced afterwards, best-effort.
func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0644)
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}

	// Last point at which the write can be abandoned without touching durable state.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Remove deletes the file. A missing file is not an error.
func (b *FileBackend) Remove(ctx context.Context) error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index file: %w", err)
	}
	return nil
}

// Location returns the file path.
func (b *FileBackend) Location() string {
	return b.path
}

// MemoryBackend keeps the encoded index in memory. It is not durable across restarts.
type MemoryBackend struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Read returns a copy of the stored bytes, or ErrNotExist.
func (b *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, ErrNotExist
	}
	return append([]byte(nil), b.data...), nil
}

// Write replaces the stored bytes.
func (b *MemoryBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.data = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

// Remove clears the stored bytes.
func (b *MemoryBackend) Remove(ctx context.Context) error {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
	return nil
}

// Location returns "memory".
func (b *MemoryBackend) Location() string {
	return "memory"
}
