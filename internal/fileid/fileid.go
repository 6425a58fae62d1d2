// Package fileid maps files under the upload directory to document IDs and back.
package fileid

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a document ID would resolve outside the upload directory.
var ErrOutsideRoot = errors.New("path escapes upload directory")

// DocumentID returns the ID of the file at p: its slash-separated path relative to root.
// Files outside root are identified by their base name.
func DocumentID(root, p string) string {
	absRoot, err1 := filepath.Abs(root)
	absPath, err2 := filepath.Abs(p)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(absRoot, absPath); err == nil && rel != "." && !escapes(filepath.ToSlash(rel)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(p)
}

// Resolve returns the file path for a document ID. IDs that are absolute or climb out of root
// fail with ErrOutsideRoot.
func Resolve(root, id string) (string, error) {
	id = strings.ReplaceAll(id, "\\", "/")
	if id == "" || path.IsAbs(id) {
		return "", ErrOutsideRoot
	}
	clean := path.Clean(id)
	if clean == "." || escapes(clean) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, "../")
}
