package watcher

import (
	"path/filepath"
	"strings"
)

// DefaultExtensions are the file types picked up from inbox directories.
var DefaultExtensions = []string{".pdf"}

// Filter decides whether a file should be reported.
type Filter func(path string) bool

// ExtensionFilter accepts visible files whose extension is one of exts, compared without
// case or leading dot. With no exts every visible file is accepted. Hidden files are
// rejected so in-progress imports (".import-*") are never picked up.
func ExtensionFilter(exts ...string) Filter {
	want := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		want[strings.TrimPrefix(strings.ToLower(e), ".")] = struct{}{}
	}
	return func(path string) bool {
		if strings.HasPrefix(filepath.Base(path), ".") {
			return false
		}
		if len(want) == 0 {
			return true
		}
		_, ok := want[strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")]
		return ok
	}
}

// within reports whether path is dir or lies below it. Both must be clean.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
