package models

// RelevanceMatch is a retrieved page with its similarity score. Never persisted.
type RelevanceMatch struct {
	Page  PageRecord `json:"page"`
	Score float64    `json:"score"`
}

// Citation points back to the source page of a reference in the prompt.
// Locator is resolvable by the file server to the original bytes at that page.
type Citation struct {
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
	Locator    string `json:"locator"`
}

// Answer is the generated response plus citations aligned with the prompt's reference numbers:
// "Reference N" corresponds to Citations[N-1].
type Answer struct {
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
}

// Sources returns the citation locators in reference order.
func (a *Answer) Sources() []string {
	out := make([]string, len(a.Citations))
	for i, c := range a.Citations {
		out[i] = c.Locator
	}
	return out
}
