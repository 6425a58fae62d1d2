// Package extract segments documents into 1-based pages of plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnsupportedFormat is returned for extensions that cannot be split into pages.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor splits document files into page records.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether files with the given name can be segmented.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".pptx", ".odp", ".txt", ".md":
		return true
	}
	return false
}

// Pages reads the file at path and returns one record per non-empty page, tagged with documentID.
func (e *Extractor) Pages(path, documentID string) ([]models.PageRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.PagesFromBytes(documentID, content, filepath.Ext(path))
}

// PagesFromBytes segments content according to ext (with the leading dot, e.g. ".pdf").
// PDF pages keep their position in the file; slides count as pages; plain text is a single page 1.
// Pages without any text are skipped, so numbering may have gaps.
func (e *Extractor) PagesFromBytes(documentID string, content []byte, ext string) ([]models.PageRecord, error) {
	var (
		texts []string
		err   error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		texts, err = extractPDF(content)
	case ".pptx":
		texts, err = extractPPTX(content)
	case ".odp":
		texts, err = extractODP(content)
	case ".txt", ".md":
		texts = []string{extractPlain(content)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to segment %s: %w", documentID, err)
	}

	pages := make([]models.PageRecord, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, models.PageRecord{
			DocumentID: documentID,
			PageNumber: i + 1,
			Text:       text,
		})
	}
	return pages, nil
}
