package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// Submitter accepts background ingestion jobs.
type Submitter interface {
	Submit(job indexer.Job) (*indexer.Task, error)
}

// FileIngester segments and ingests files.
type FileIngester interface {
	IngestFiles(ctx context.Context, paths []string) (*models.IngestResult, error)
	DocumentID(path string) string
}

// Inbox turns watcher reports into ingestion tasks. Files outside the upload directory are
// copied into it first so citations can be served. Documents the catalog already knows
// are skipped unless their last ingestion failed.
type Inbox struct {
	ingester  FileIngester
	queue     Submitter
	catalog   storage.Catalog
	uploadDir string
	logger    *zap.Logger

	mu sync.Mutex
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(in *Inbox) { in.logger = l }
}

// NewInbox creates an Inbox. catalog may be nil, in which case nothing is deduplicated.
func NewInbox(ingester FileIngester, queue Submitter, catalog storage.Catalog, uploadDir string, opts ...InboxOption) *Inbox {
	in := &Inbox{ingester: ingester, queue: queue, catalog: catalog, uploadDir: uploadDir}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Handle is the Watcher callback.
func (in *Inbox) Handle(paths []string) {
	task, ids, err := in.Submit(context.Background(), paths)
	if in.logger == nil {
		return
	}
	switch {
	case err != nil:
		in.logger.Warn("inbox submission failed", zap.Strings("paths", paths), zap.Error(err))
	case task != nil:
		in.logger.Info("inbox documents queued", zap.String("task", task.ID), zap.Strings("documents", ids))
	}
}

// Submit queues one ingestion task for the new documents among paths. It returns a nil task
// when every document was already known.
func (in *Inbox) Submit(ctx context.Context, paths []string) (*indexer.Task, []string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var (
		targets []string
		ids     []string
		sizes   []int64
	)
	seen := make(map[string]struct{})
	for _, src := range paths {
		dst := in.destination(src)
		id := in.ingester.DocumentID(dst)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if in.known(ctx, id) {
			if in.logger != nil {
				in.logger.Debug("inbox skipping known document", zap.String("document", id))
			}
			continue
		}
		if dst != src {
			if err := copyFile(src, dst); err != nil {
				return nil, nil, fmt.Errorf("failed to import %s: %w", src, err)
			}
		}
		var size int64
		if info, err := os.Stat(dst); err == nil {
			size = info.Size()
		}
		targets = append(targets, dst)
		ids = append(ids, id)
		sizes = append(sizes, size)
	}
	if len(targets) == 0 {
		return nil, nil, nil
	}

	in.mark(ctx, ids, sizes, models.StatusQueued, nil)
	task, err := in.queue.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		return in.ingester.IngestFiles(ctx, targets)
	})
	if err != nil {
		in.mark(ctx, ids, sizes, models.StatusFailed, err)
		return nil, nil, err
	}
	return task, ids, nil
}

func (in *Inbox) destination(src string) string {
	if in.uploadDir == "" {
		return src
	}
	absRoot, err1 := filepath.Abs(in.uploadDir)
	absSrc, err2 := filepath.Abs(src)
	if err1 == nil && err2 == nil && within(absRoot, absSrc) {
		return src
	}
	return filepath.Join(in.uploadDir, filepath.Base(src))
}

func (in *Inbox) known(ctx context.Context, id string) bool {
	if in.catalog == nil {
		return false
	}
	rec, err := in.catalog.Get(ctx, id)
	if err != nil {
		return false
	}
	return rec.Status != models.StatusFailed
}

func (in *Inbox) mark(ctx context.Context, ids []string, sizes []int64, status string, cause error) {
	if in.catalog == nil {
		return
	}
	for i, id := range ids {
		rec := &models.DocumentRecord{ID: id, SizeBytes: sizes[i], Status: status}
		if existing, err := in.catalog.Get(ctx, id); err == nil {
			rec.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, storage.ErrNotFound) && in.logger != nil {
			in.logger.Debug("catalog lookup failed", zap.String("document", id), zap.Error(err))
		}
		if cause != nil {
			rec.Error = cause.Error()
		}
		if err := in.catalog.Upsert(ctx, rec); err != nil && in.logger != nil {
			in.logger.Warn("failed to update catalog", zap.String("document", id), zap.Error(err))
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".import-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}
