package fileid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentID(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		path string
		want string
	}{
		{"top level", filepath.Join(root, "a.pdf"), "a.pdf"},
		{"nested", filepath.Join(root, "team", "q3", "report.pdf"), "team/q3/report.pdf"},
		{"unclean", filepath.Join(root, "team", "..", "b.pdf"), "b.pdf"},
		{"outside root", filepath.Join(filepath.Dir(root), "elsewhere", "c.pdf"), "c.pdf"},
		{"root itself", root, filepath.Base(root)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentID(root, tt.path))
		})
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, "team/q3/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "team", "q3", "report.pdf"), got)

	got, err = Resolve(root, "team/../a.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.pdf"), got)
}

func TestResolve_rejectsEscapes(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", ".", "..", "../secret", "a/../../secret", "/etc/passwd", "..\\secret"} {
		_, err := Resolve(root, id)
		assert.ErrorIs(t, err, ErrOutsideRoot, id)
	}
}

func TestDocumentID_roundTrip(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "dir", "file name.pdf")
	back, err := Resolve(root, DocumentID(root, p))
	require.NoError(t, err)
	assert.Equal(t, p, back)
}
