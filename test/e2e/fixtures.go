// Package e2e provides end-to-end tests; this file builds minimal multi-page files for supported types.
package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// PDF is not generated here; it goes through the same page path as the slide formats.
var SupportedFileExtensions = []string{".txt", ".md", ".pptx", ".odp"}

// WriteMinimalFile returns the bytes of a minimal file of the given extension holding pages.
// Plain text formats hold a single page, so they accept exactly one.
func WriteMinimalFile(ext string, pages []string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		if len(pages) != 1 {
			return nil, fmt.Errorf("%s holds one page, got %d", ext, len(pages))
		}
		return []byte(pages[0]), nil
	case ".pptx":
		return minimalPptx(pages)
	case ".odp":
		return minimalOdp(pages)
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

func minimalPptx(slides []string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	// Written in reverse so slide order cannot come from zip order.
	for i := len(slides) - 1; i >= 0; i-- {
		fw, err := w.Create(fmt.Sprintf("ppt/slides/slide%d.xml", i+1))
		if err != nil {
			return nil, err
		}
		body := `<p:sld xmlns:p="a" xmlns:a="b"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` +
			slides[i] + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		if _, err := fw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalOdp(pages []string) ([]byte, error) {
	var content strings.Builder
	content.WriteString(`<office:document><office:body><office:presentation>`)
	for i, p := range pages {
		fmt.Fprintf(&content, `<draw:page draw:name="page%d"><draw:frame><draw:text-box><text:p>%s</text:p></draw:text-box></draw:frame></draw:page>`, i+1, p)
	}
	content.WriteString(`</office:presentation></office:body></office:document>`)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("content.xml")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(content.String())); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
