package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/query"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	e2eTopK       = 5
	e2eDimensions = 512
	e2eBaseURL    = "http://docs.example.test/"
)

type env struct {
	cfg       *config.Config
	store     *vector.Store
	catalog   *storage.SQLiteCatalog
	queue     *indexer.Queue
	inbox     *watcher.Inbox
	generator *generation.MockGenerator
	client    *cli.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	threshold := 0.0
	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: e2eBaseURL},
		Storage: config.StorageConfig{
			IndexPath:       filepath.Join(dir, "index", "pages.kidx"),
			DatabasePath:    filepath.Join(dir, "catalog.db"),
			UploadDirectory: filepath.Join(dir, "uploads"),
		},
		Embedding:  config.EmbeddingConfig{Kind: "mock", Dimensions: e2eDimensions},
		Generation: config.GenerationConfig{Kind: "mock"},
		Retrieval:  config.RetrievalConfig{TopK: e2eTopK, Threshold: &threshold},
	}
	config.ApplyDefaults(cfg)
	require.NoError(t, os.MkdirAll(cfg.Storage.UploadDirectory, 0o755))

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	backend, err := vector.NewFileBackend(cfg.Storage.IndexPath)
	require.NoError(t, err)
	store := vector.NewStore(backend)

	emb, err := embedding.New(context.Background(), cfg.Embedding)
	require.NoError(t, err)
	gen := generation.NewMockGenerator("Answer grounded in (Ref 1).")

	idx := indexer.NewIndexer(store, emb,
		indexer.WithCatalog(catalog),
		indexer.WithUploadDir(cfg.Storage.UploadDirectory),
		indexer.WithTimeout(cfg.Ingest.Timeout()))
	queue := indexer.NewQueue(cfg.Ingest.Workers, cfg.Ingest.QueueSize)
	t.Cleanup(func() { _ = queue.Close() })
	pipeline := query.NewPipeline(retrieval.NewEngine(store, emb), gen, query.Config{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.ThresholdOrDefault(),
		BaseURL:   cfg.Server.BaseURL,
	})

	srv := server.NewServer(pipeline, idx, queue, store, catalog, cfg, zap.NewNop(), nil, "")
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &env{
		cfg:       cfg,
		store:     store,
		catalog:   catalog,
		queue:     queue,
		inbox:     watcher.NewInbox(idx, queue, catalog, cfg.Storage.UploadDirectory),
		generator: gen,
		client:    cli.NewClient(hs.URL, 10*time.Second),
	}
}

func TestE2E_AskCitesTheRightPage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	corpus := BuildCorpus()
	require.NotZero(t, corpus.TotalQueries)
	paths, err := corpus.WriteFiles(t.TempDir())
	require.NoError(t, err)

	task, ids, err := e.inbox.Submit(ctx, paths)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Len(t, ids, len(corpus.Documents))
	result, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, corpus.TotalPages, result.Pages)
	assert.Equal(t, len(corpus.Documents), result.Documents)
	assert.True(t, result.Created)

	t.Logf("ingested %d pages from %d documents; running %d questions",
		corpus.TotalPages, len(corpus.Documents), corpus.TotalQueries)

	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			resp, err := e.client.Ask(ctx, tc.Query)
			require.NoError(t, err)
			assert.Equal(t, "Answer grounded in (Ref 1).", resp.Response)
			require.NotEmpty(t, resp.Citations)
			assert.LessOrEqual(t, len(resp.Citations), e2eTopK)

			found := false
			for _, c := range resp.Citations {
				if c.DocumentID == tc.DocumentID && c.PageNumber == tc.PageNumber {
					found = true
					assert.Equal(t, fmt.Sprintf("%sfileserver/%s#page=%d", e2eBaseURL, tc.DocumentID, tc.PageNumber), c.Locator)
				}
			}
			assert.True(t, found, "expected %s page %d among %+v", tc.DocumentID, tc.PageNumber, resp.Citations)
			assert.Contains(t, e.generator.LastPrompt(), fmt.Sprintf("Source: %s (Page %d)", tc.DocumentID, tc.PageNumber))
		})
	}
}

func TestE2E_IncrementalIngestAndStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	corpus := BuildCorpus()
	paths, err := corpus.WriteFiles(t.TempDir())
	require.NoError(t, err)
	half := len(paths) / 2

	first, _, err := e.inbox.Submit(ctx, paths[:half])
	require.NoError(t, err)
	r1, err := first.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, r1.Created)

	// Repeats of already ingested documents are skipped.
	second, ids, err := e.inbox.Submit(ctx, paths)
	require.NoError(t, err)
	require.Len(t, ids, len(paths)-half)
	r2, err := second.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, r2.Created)
	assert.Equal(t, corpus.TotalPages, r2.TotalEntries)

	report, err := e.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, corpus.TotalPages, report.Index.Entries)
	assert.Equal(t, len(corpus.Documents), report.Index.Documents)
	assert.Equal(t, e2eDimensions, report.Index.Dimensions)
	assert.Equal(t, int64(len(corpus.Documents)), report.Catalog[models.StatusIngested])

	docs, err := e.client.Documents(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, docs, len(corpus.Documents))

	// A fresh store over the same file sees what was published.
	backend, err := vector.NewFileBackend(e.cfg.Storage.IndexPath)
	require.NoError(t, err)
	reopened, err := vector.NewStore(backend).Load(ctx)
	require.NoError(t, err)
	current, err := e.store.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, vector.Equal(current, reopened))
}

func TestE2E_AskBeforeIngest(t *testing.T) {
	e := newEnv(t)
	resp, err := e.client.Ask(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Empty(t, resp.Citations)
	assert.Contains(t, e.generator.LastPrompt(), query.NoContextMarker)
}
