package query

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// NoContextMarker replaces the references when retrieval found nothing relevant.
const NoContextMarker = "[No context is given. Answer without context.]"

// BuildPrompt renders the query and the matches as numbered references.
// "Reference N" describes matches[N-1].
func BuildPrompt(query string, matches []models.RelevanceMatch) string {
	refs := NoContextMarker
	if len(matches) > 0 {
		blocks := make([]string, len(matches))
		for i, m := range matches {
			blocks[i] = fmt.Sprintf("Reference %d\nSource: %s (Page %d)\nContent: %s",
				i+1, m.Page.DocumentID, m.Page.PageNumber, m.Page.Text)
		}
		refs = strings.TrimSpace(strings.Join(blocks, "\n\n"))
	}

	prompt := "The user has the following query: " + query + "\n" +
		"Following is information to help answer this query. " +
		"If using information from a reference, quote it like (Ref 1) or (Ref 2) etc:\n" +
		refs
	return strings.TrimSpace(prompt)
}
