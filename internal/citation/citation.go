// Package citation builds and parses the locators that point answers back at source pages.
//
// A locator has the form <base>/fileserver/<escaped document id>#page=<n>. Each path segment
// of the document id is escaped, so Parse recovers the exact id and 1-based page.
package citation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// FileServerPrefix is the path under the base URL where documents are served.
const FileServerPrefix = "fileserver/"

const pageFragment = "#page="

// Locator returns the URL of page in documentID relative to baseURL.
func Locator(baseURL, documentID string, page int) string {
	return fileServerBase(baseURL) + escapePath(documentID) + pageFragment + strconv.Itoa(page)
}

// FromPage builds the citation for a page record.
func FromPage(baseURL string, p models.PageRecord) models.Citation {
	return models.Citation{
		DocumentID: p.DocumentID,
		PageNumber: p.PageNumber,
		Locator:    Locator(baseURL, p.DocumentID, p.PageNumber),
	}
}

// Parse inverts Locator for the same baseURL.
func Parse(baseURL, locator string) (models.Citation, error) {
	prefix := fileServerBase(baseURL)
	if !strings.HasPrefix(locator, prefix) {
		return models.Citation{}, fmt.Errorf("%w: locator %q is not under %q", models.ErrInvalidArgument, locator, prefix)
	}
	rest := locator[len(prefix):]
	i := strings.LastIndex(rest, pageFragment)
	if i < 0 {
		return models.Citation{}, fmt.Errorf("%w: locator %q has no page fragment", models.ErrInvalidArgument, locator)
	}
	page, err := strconv.Atoi(rest[i+len(pageFragment):])
	if err != nil || page < 1 {
		return models.Citation{}, fmt.Errorf("%w: locator %q has invalid page", models.ErrInvalidArgument, locator)
	}
	docID, err := url.PathUnescape(rest[:i])
	if err != nil || docID == "" {
		return models.Citation{}, fmt.Errorf("%w: locator %q has invalid document id", models.ErrInvalidArgument, locator)
	}
	return models.Citation{DocumentID: docID, PageNumber: page, Locator: locator}, nil
}

func fileServerBase(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + FileServerPrefix
}

// escapePath escapes each "/"-separated segment, keeping the separators.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
