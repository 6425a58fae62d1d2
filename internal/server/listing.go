package server

import (
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hyperjump/kotae/internal/fileid"
	"go.uber.org/zap"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Uploaded files</title></head>
<body>
<h1>Uploaded files</h1>
<ul>
{{- range .}}
<li><a href="{{.Href}}">{{.ID}}</a> ({{.Size}})</li>
{{- else}}
<li>No files uploaded.</li>
{{- end}}
</ul>
</body>
</html>
`))

type listedFile struct {
	ID   string
	Href string
	Size string
}

// handleFileListing renders the upload directory as an HTML page linking every file.
func (s *Server) handleFileListing(w http.ResponseWriter, r *http.Request) {
	files, err := listUploads(s.config.Storage.UploadDirectory)
	if err != nil {
		s.logger.Error("failed to list uploads", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listingTemplate.Execute(w, files); err != nil {
		s.logger.Warn("failed to render file listing", zap.Error(err))
	}
}

// listUploads walks root in lexical order, skipping hidden files and directories.
// A missing root lists nothing.
func listUploads(root string) ([]listedFile, error) {
	var files []listedFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		id := fileid.DocumentID(root, p)
		files = append(files, listedFile{
			ID:   id,
			Href: "/fileserver/" + escapeID(id),
			Size: humanize.Bytes(uint64(info.Size())),
		})
		return nil
	})
	return files, err
}

func escapeID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
