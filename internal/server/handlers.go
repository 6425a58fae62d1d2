package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type uploadResponse struct {
	Message   string   `json:"message"`
	TaskID    string   `json:"task_id"`
	Documents []string `json:"documents"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	ctx := r.Context()
	uploadDir := s.config.Storage.UploadDirectory

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	names := make([]string, len(files))
	seen := make(map[string]struct{}, len(files))
	for i, fh := range files {
		name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
		if name == "." || name == "/" || name == ".." {
			s.respondError(w, http.StatusBadRequest, "invalid file name")
			return
		}
		if strings.ToLower(filepath.Ext(name)) != ".pdf" {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("only PDF files are allowed: %s", name))
			return
		}
		if _, dup := seen[name]; dup || s.uploadExists(ctx, uploadDir, name) {
			s.respondError(w, http.StatusConflict, fmt.Sprintf("file already exists: %s", name))
			return
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	paths := make([]string, 0, len(files))
	for i, fh := range files {
		dst := filepath.Join(uploadDir, names[i])
		if err := saveUpload(fh, dst); err != nil {
			for _, p := range paths {
				_ = os.Remove(p)
			}
			s.logger.Error("failed to save upload", zap.String("file", names[i]), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to save upload")
			return
		}
		paths = append(paths, dst)
		s.markDocument(ctx, names[i], fh.Size, models.StatusQueued, nil)
	}

	task, err := s.queue.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		return s.indexer.IngestFiles(ctx, paths)
	})
	if err != nil {
		for i, fh := range files {
			s.markDocument(ctx, names[i], fh.Size, models.StatusFailed, err)
		}
		s.respondErr(w, err)
		return
	}
	s.logger.Info("upload queued for ingestion", zap.String("task", task.ID), zap.Strings("documents", names))
	s.respondJSON(w, http.StatusAccepted, uploadResponse{
		Message:   "Files uploaded successfully, ingestion queued",
		TaskID:    task.ID,
		Documents: names,
	})
}

// uploadExists reports whether name is already taken. A document whose ingestion failed may be
// uploaded again.
func (s *Server) uploadExists(ctx context.Context, uploadDir, name string) bool {
	rec, err := s.catalog.Get(ctx, name)
	if err == nil {
		return rec.Status != models.StatusFailed
	}
	_, statErr := os.Stat(filepath.Join(uploadDir, name))
	return statErr == nil
}

func (s *Server) markDocument(ctx context.Context, id string, size int64, status string, cause error) {
	rec := &models.DocumentRecord{ID: id, SizeBytes: size, Status: status}
	if existing, err := s.catalog.Get(ctx, id); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := s.catalog.Upsert(ctx, rec); err != nil {
		s.logger.Warn("failed to update catalog", zap.String("document", id), zap.Error(err))
	}
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
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

type taskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Pages) == 0 {
		s.respondError(w, http.StatusBadRequest, "no pages to ingest")
		return
	}
	for _, p := range req.Pages {
		if err := p.Validate(); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	s.logger.Debug("ingest request", zap.Int("pages", len(req.Pages)), zap.Bool("wait", req.Wait))

	if req.Wait {
		result, err := s.indexer.Ingest(r.Context(), req.Pages)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
		return
	}
	pages := req.Pages
	task, err := s.queue.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		return s.indexer.Ingest(ctx, pages)
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, taskResponse{TaskID: task.ID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	s.respondJSON(w, http.StatusOK, task.Status())
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondErr(w, err)
		return
	}
	start := time.Now()
	answer, err := s.pipeline.Answer(r.Context(), req.Query)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	citations := answer.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Response:  answer.Response,
		Citations: citations,
		Sources:   answer.Sources(),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleFileCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.Count(r.Context(), models.StatusIngested)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleFileSize(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.TotalSize(r.Context(), models.StatusIngested)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"size_bytes": n,
		"size":       humanize.Bytes(uint64(n)),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultListLimit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	ctx := r.Context()
	docs, err := s.catalog.List(ctx, offset, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	total, err := s.catalog.Count(ctx, "")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if docs == nil {
		docs = []*models.DocumentRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := Status(r.Context(), s.store, s.catalog, s.config)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	report.QueuePending = s.queue.Pending()
	s.respondJSON(w, http.StatusOK, report)
}

// Status collects index, catalog and disk usage figures.
func Status(ctx context.Context, store *vector.Store, catalog storage.Catalog, cfg *config.Config) (*models.StatusReport, error) {
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	report := &models.StatusReport{
		Index: models.IndexStatus{
			Location:   store.Location(),
			Entries:    snap.Len(),
			Documents:  len(snap.DocumentIDs()),
			Dimensions: snap.Dims(),
		},
		Catalog: make(map[string]int64),
	}
	for _, status := range []string{models.StatusQueued, models.StatusIngested, models.StatusFailed} {
		n, err := catalog.Count(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s documents: %w", status, err)
		}
		report.Catalog[status] = n
	}
	report.Config = map[string]interface{}{
		"embedding_kind":   cfg.Embedding.Kind,
		"embedding_model":  cfg.Embedding.Model,
		"generation_kind":  cfg.Generation.Kind,
		"generation_model": cfg.Generation.Model,
		"top_k":            cfg.Retrieval.TopK,
		"threshold":        cfg.Retrieval.ThresholdOrDefault(),
		"merge_policy":     cfg.Ingest.MergePolicy,
		"index_backend":    cfg.Storage.IndexBackend,
		"base_url":         cfg.Server.BaseURL,
	}
	paths := []string{cfg.Storage.DatabasePath, cfg.Storage.UploadDirectory}
	if cfg.Storage.IndexBackend != config.IndexBackendMinio {
		paths = append(paths, cfg.Storage.IndexPath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		report.DiskUsageBytes = &diskBytes
		report.DiskUsage = humanize.Bytes(uint64(diskBytes))
	}
	return report, nil
}

// handleReset empties the index, the catalog and the upload directory.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()
	if err := Reset(r.Context(), s.store, s.catalog, s.config.Storage.UploadDirectory); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.logger.Info("index reset")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Resetter clears durable index state.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Reset clears the index first, then the catalog and the uploaded files.
func Reset(ctx context.Context, store Resetter, catalog storage.Catalog, uploadDir string) error {
	if err := store.Reset(ctx); err != nil {
		return err
	}
	if err := catalog.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	if uploadDir == "" {
		return nil
	}
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read upload directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(uploadDir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// handleFileServer serves uploaded documents so citation locators resolve.
func (s *Server) handleFileServer(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if rel == "" {
		s.handleFileListing(w, r)
		return
	}
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(rel)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid path")
			return
		}
		rel = unescaped
	}
	p, err := fileid.Resolve(s.config.Storage.UploadDirectory, rel)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	f, err := os.Open(p)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			p = body.Path
		}
	}
	if p == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.watchConfigMu.Lock()
	defer s.watchConfigMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStoreBusy):
		return http.StatusConflict
	case errors.Is(err, models.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrQueueFull),
		errors.Is(err, indexer.ErrQueueClosed),
		errors.Is(err, models.ErrEmbeddingUnavailable),
		errors.Is(err, models.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
