package models

// Suggestion is a single ranked hit returned by the suggest operation.
type Suggestion struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// SuggestResponse is the response for a suggest request.
type SuggestResponse struct {
	Query   string        `json:"query"`
	Results []*Suggestion `json:"results"`
	// Partial is set while the index is still bulk loading; results may be incomplete.
	Partial   bool  `json:"partial,omitempty"`
	QueryTime int64 `json:"query_time_ms"`
}
