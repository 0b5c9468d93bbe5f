package db

// TagClause matches a tag field against any of the listed values (OR).
type TagClause struct {
	Field string
	AnyOf []string
}

// RangeClause bounds a numeric field. Unset bounds are open.
type RangeClause struct {
	Field  string
	Min    float64
	Max    float64
	HasMin bool
	HasMax bool
}

// Filter is a conjunctive pre-filter applied before the KNN stage.
// All clauses must hold; values inside a TagClause are alternatives.
type Filter struct {
	Tags   []TagClause
	Ranges []RangeClause
}

// IsEmpty reports whether the filter has no clauses.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0 && len(f.Ranges) == 0
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filter       Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
