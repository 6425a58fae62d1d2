package citation

import (
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator(t *testing.T) {
	tests := []struct {
		base string
		doc  string
		page int
		want string
	}{
		{"http://localhost:8000/", "a.pdf", 1, "http://localhost:8000/fileserver/a.pdf#page=1"},
		{"http://localhost:8000", "a.pdf", 3, "http://localhost:8000/fileserver/a.pdf#page=3"},
		{"https://docs.example.com/kotae/", "reports/2024 q1.pdf", 12, "https://docs.example.com/kotae/fileserver/reports/2024%20q1.pdf#page=12"},
		{"http://h/", "a#b?.pdf", 2, "http://h/fileserver/a%23b%3F.pdf#page=2"},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			assert.Equal(t, tt.want, Locator(tt.base, tt.doc, tt.page))
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	base := "http://localhost:8000/"
	docs := []string{"a.pdf", "dir/sub/b.pdf", "spaces and ümlauts.pdf", "100%#weird?.pdf", "page=3.pdf", "a#page=9.pdf"}
	for _, doc := range docs {
		for _, page := range []int{1, 7, 1234} {
			loc := Locator(base, doc, page)
			got, err := Parse(base, loc)
			require.NoError(t, err, loc)
			assert.Equal(t, doc, got.DocumentID)
			assert.Equal(t, page, got.PageNumber)
			assert.Equal(t, loc, got.Locator)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	base := "http://localhost:8000/"
	for _, loc := range []string{
		"http://other/fileserver/a.pdf#page=1",
		"http://localhost:8000/fileserver/a.pdf",
		"http://localhost:8000/fileserver/a.pdf#page=0",
		"http://localhost:8000/fileserver/a.pdf#page=x",
		"http://localhost:8000/fileserver/#page=1",
		"http://localhost:8000/fileserver/%zz.pdf#page=1",
	} {
		_, err := Parse(base, loc)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, loc)
	}
}

func TestFromPage(t *testing.T) {
	c := FromPage("http://h/", models.PageRecord{DocumentID: "b.pdf", PageNumber: 5, Text: "ignored"})
	assert.Equal(t, models.Citation{DocumentID: "b.pdf", PageNumber: 5, Locator: "http://h/fileserver/b.pdf#page=5"}, c)
}
