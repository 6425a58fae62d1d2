package models

import (
	"fmt"
	"strings"
)

// AskRequest is a question submitted for answering.
type AskRequest struct {
	Query string `json:"query"`
	// InputValue is accepted as an alias of Query for older web clients.
	InputValue string `json:"inputValue,omitempty"`
}

// Validate resolves the alias field and trims the query.
// Returns ErrInvalidArgument if no query text remains.
func (r *AskRequest) Validate() error {
	if r.Query == "" {
		r.Query = r.InputValue
	}
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// AskResponse is the wire shape of an answer.
// Sources repeats the citation locators in reference order.
type AskResponse struct {
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
	Sources   []string   `json:"sources"`
	QueryTime int64      `json:"query_time_ms"`
}

// IngestRequest submits already segmented pages.
type IngestRequest struct {
	Pages []PageRecord `json:"pages"`
	Wait  bool         `json:"wait,omitempty"`
}
