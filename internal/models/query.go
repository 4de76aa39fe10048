package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a suggest query has no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SuggestQuery represents a suggest request.
type SuggestQuery struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate trims the query and normalizes K into [1, maxK], using defaultK when K is not positive.
// Returns ErrEmptyQuery if the query is blank.
func (q *SuggestQuery) Validate(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	if q.K <= 0 {
		q.K = 1
	}
	return nil
}
