package shopdex

// SearchRequest is one conversational search turn.
type SearchRequest struct {
	Query string `json:"query"`
	// UserID enables personalization and profile write-back.
	UserID string `json:"user_id,omitempty"`
	// SessionID groups turns; used for suggestion supersede.
	SessionID string `json:"session_id,omitempty"`
	// PriorQuery carries the previous turn so elliptical follow-ups like
	// "cheaper ones" resolve against it.
	PriorQuery string `json:"prior_query,omitempty"`
	// Suggestions asks for inline completions with the results.
	Suggestions bool `json:"suggestions,omitempty"`
}

// Product is one ranked result.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Rating      float64  `json:"rating"`
	Score       float64  `json:"score"`
	Similarity  float64  `json:"similarity"`
	Tags        []string `json:"tags,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// CompareGroup lists ranked product ids for one comparison entity.
type CompareGroup struct {
	Entity     string   `json:"entity"`
	ProductIDs []string `json:"product_ids"`
}

// SearchResponse is the assembled search answer.
type SearchResponse struct {
	Summary     string         `json:"summary"`
	Products    []Product      `json:"products"`
	Groups      []CompareGroup `json:"groups,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Notes       []string       `json:"notes,omitempty"`
	Degraded    bool           `json:"degraded,omitempty"`
}

// SuggestResponse holds typeahead completions.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// HealthReport is the server health summary.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
