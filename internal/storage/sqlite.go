package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		pages INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert inserts doc or updates the existing row with the same id. created_at is kept on update.
func (s *SQLiteCatalog) Upsert(ctx context.Context, doc *models.DocumentRecord) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, size_bytes, pages, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			pages = excluded.pages,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		doc.ID, doc.SizeBytes, doc.Pages, doc.Status, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by ID.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (*models.DocumentRecord, error) {
	var doc models.DocumentRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, size_bytes, pages, status, error, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.SizeBytes, &doc.Pages, &doc.Status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents ordered by creation time, newest first.
func (s *SQLiteCatalog) List(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, size_bytes, pages, status, error, created_at, updated_at
		 FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.DocumentRecord
	for rows.Next() {
		var doc models.DocumentRecord
		if err := rows.Scan(&doc.ID, &doc.SizeBytes, &doc.Pages, &doc.Status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Count returns the number of documents with status, or all documents when status is empty.
func (s *SQLiteCatalog) Count(ctx context.Context, status string) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE status = ?", status).Scan(&count)
	}
	return count, err
}

// TotalSize returns the summed size in bytes of documents with status, or of all documents.
func (s *SQLiteCatalog) TotalSize(ctx context.Context, status string) (int64, error) {
	var total int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM documents").Scan(&total)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE status = ?", status).Scan(&total)
	}
	return total, err
}

// Clear deletes every catalog entry.
func (s *SQLiteCatalog) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents")
	return err
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
