package e2e

import (
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMinimalFile_AllExtensionsSegment(t *testing.T) {
	e := extract.NewExtractor()
	for _, ext := range SupportedFileExtensions {
		t.Run(ext, func(t *testing.T) {
			pages := []string{"E2E first page"}
			if ext == ".pptx" || ext == ".odp" {
				pages = append(pages, "E2E second page", "E2E third page")
			}
			content, err := WriteMinimalFile(ext, pages)
			require.NoError(t, err)
			require.NotEmpty(t, content)

			got, err := e.PagesFromBytes("doc"+ext, content, ext)
			require.NoError(t, err)
			require.Len(t, got, len(pages))
			for i, p := range got {
				assert.Equal(t, i+1, p.PageNumber)
				assert.Equal(t, pages[i], p.Text)
			}
		})
	}
}

func TestWriteMinimalFile_Rejects(t *testing.T) {
	_, err := WriteMinimalFile(".txt", []string{"a", "b"})
	assert.Error(t, err)
	_, err = WriteMinimalFile(".pdf", []string{"a"})
	assert.Error(t, err)
}
