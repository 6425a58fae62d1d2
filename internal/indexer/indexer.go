// Package indexer embeds page records and merges them into the vector store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// Merger is the write side of the vector store.
type Merger interface {
	MergeAndPersist(ctx context.Context, entries []models.IndexEntry) (created bool, total int, err error)
}

// Indexer is the only writer of index state.
type Indexer struct {
	store     Merger
	embedder  embedding.Embedder
	extractor *extract.Extractor
	catalog   storage.Catalog // optional
	uploadDir string
	timeout   time.Duration
	logger    *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCatalog records ingested files and their outcome in c.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithUploadDir sets the directory document IDs are relative to.
func WithUploadDir(dir string) IndexerOption {
	return func(idx *Indexer) { idx.uploadDir = dir }
}

// WithTimeout bounds each Ingest call. Zero means no extra deadline.
func WithTimeout(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.timeout = d }
}

// NewIndexer creates an indexer writing to store.
func NewIndexer(store Merger, embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		extractor: extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest embeds pages and merges them into the store as one unit. If any page fails to embed,
// nothing is merged, even when pages span several documents.
func (idx *Indexer) Ingest(ctx context.Context, pages []models.PageRecord) (*models.IngestResult, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages to ingest", models.ErrInvalidArgument)
	}
	docs := make(map[string]struct{})
	texts := make([]string, len(pages))
	for i, p := range pages {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		docs[p.DocumentID] = struct{}{}
		texts[i] = Preprocess(p.Text)
	}
	if idx.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.timeout)
		defer cancel()
	}

	start := time.Now()
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, timeoutAware(fmt.Errorf("failed to generate embeddings: %w", err))
	}
	if len(vectors) != len(pages) {
		return nil, fmt.Errorf("%w: got %d vectors for %d pages", models.ErrEmbeddingUnavailable, len(vectors), len(pages))
	}
	embedTime := time.Since(start)

	entries := make([]models.IndexEntry, len(pages))
	for i, p := range pages {
		entries[i] = models.IndexEntry{Vector: vectors[i], Page: p}
	}
	created, total, err := idx.store.MergeAndPersist(ctx, entries)
	if err != nil {
		return nil, timeoutAware(fmt.Errorf("failed to merge index: %w", err))
	}

	if idx.logger != nil {
		idx.logger.Debug("pages ingested",
			zap.Int("pages", len(pages)),
			zap.Int("documents", len(docs)),
			zap.Bool("created", created),
			zap.Duration("embedding", embedTime),
			zap.Duration("total", time.Since(start)))
	}
	return &models.IngestResult{
		Pages:        len(pages),
		Documents:    len(docs),
		Created:      created,
		TotalEntries: total,
	}, nil
}

// IngestFiles segments every file and ingests all pages in a single Ingest call.
// Each file's outcome is recorded in the catalog when one is configured.
func (idx *Indexer) IngestFiles(ctx context.Context, paths []string) (*models.IngestResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files to ingest", models.ErrInvalidArgument)
	}
	records := make([]*models.DocumentRecord, 0, len(paths))
	var pages []models.PageRecord
	var segErr error
	for _, p := range paths {
		rec := &models.DocumentRecord{ID: idx.DocumentID(p), Status: models.StatusQueued}
		records = append(records, rec)
		if info, err := os.Stat(p); err == nil {
			rec.SizeBytes = info.Size()
		}
		if segErr != nil {
			continue
		}
		docPages, err := idx.extractor.Pages(p, rec.ID)
		if err != nil {
			segErr = fmt.Errorf("%w: %w", models.ErrInvalidArgument, err)
			continue
		}
		if len(docPages) == 0 && idx.logger != nil {
			idx.logger.Warn("document has no extractable text", zap.String("document", rec.ID))
		}
		rec.Pages = len(docPages)
		pages = append(pages, docPages...)
	}
	if segErr != nil {
		idx.record(ctx, records, segErr)
		return nil, segErr
	}

	result, err := idx.Ingest(ctx, pages)
	idx.record(ctx, records, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DocumentID returns the ID under which the file at path is indexed.
func (idx *Indexer) DocumentID(path string) string {
	return fileid.DocumentID(idx.uploadDir, path)
}

func (idx *Indexer) record(ctx context.Context, records []*models.DocumentRecord, ingestErr error) {
	if idx.catalog == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, rec := range records {
		if existing, err := idx.catalog.Get(ctx, rec.ID); err == nil {
			rec.CreatedAt = existing.CreatedAt
		}
		rec.Status = models.StatusIngested
		if ingestErr != nil {
			rec.Status = models.StatusFailed
			rec.Error = ingestErr.Error()
		}
		if err := idx.catalog.Upsert(ctx, rec); err != nil && idx.logger != nil {
			idx.logger.Warn("failed to update catalog", zap.String("document", rec.ID), zap.Error(err))
		}
	}
}

func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrUpstreamTimeout) {
		return fmt.Errorf("%w: %w", models.ErrUpstreamTimeout, err)
	}
	return err
}
