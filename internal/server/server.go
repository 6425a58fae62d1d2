// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	minRequestTimeout = 60 * time.Second
	maxUploadMemory   = 32 << 20
)

// Answerer answers questions with citations.
type Answerer interface {
	Answer(ctx context.Context, q string) (*models.Answer, error)
}

// WatchService manages watched inbox directories. It is optional.
type WatchService interface {
	Directories() []string
	AddDirectory(root string, syncExisting bool) error
	RemoveDirectory(root string) error
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	pipeline Answerer
	indexer  *indexer.Indexer
	queue    *indexer.Queue
	store    *vector.Store
	catalog  storage.Catalog
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	watch         WatchService
	configPath    string
	watchConfigMu sync.Mutex

	// uploadMu serializes the duplicate check and save of uploads.
	uploadMu sync.Mutex
}

// NewServer creates a server with the given dependencies. watch may be nil; when configPath is
// set, watch directory changes are saved back to it.
func NewServer(
	pipeline Answerer,
	idx *indexer.Indexer,
	queue *indexer.Queue,
	store *vector.Store,
	catalog storage.Catalog,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline:   pipeline,
		indexer:    idx,
		queue:      queue,
		store:      store,
		catalog:    catalog,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
	}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/ingest", s.handleIngest)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Post("/ask", s.handleAsk)
		r.Get("/files/count", s.handleFileCount)
		r.Get("/files/size", s.handleFileSize)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/status", s.handleStatus)
		r.Post("/admin/reset", s.handleReset)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/fileserver", s.handleFileListing)
	r.Get("/fileserver/*", s.handleFileServer)
	r.Get("/health", s.handleHealth)
	return r
}

// requestTimeout leaves room for a full embed plus generate round trip.
func (s *Server) requestTimeout() time.Duration {
	d := time.Duration(s.config.Embedding.TimeoutSeconds+s.config.Generation.TimeoutSeconds)*time.Second + 10*time.Second
	if d < minRequestTimeout {
		return minRequestTimeout
	}
	return d
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("base_url", s.config.Server.BaseURL))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
