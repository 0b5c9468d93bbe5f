package chi

import (
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
	"github.com/kailas-cloud/shopdex/internal/usecase/pipeline"
)

// Error response codes.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeMalformedQuery       = "malformed_query"
	codeRetrievalUnavailable = "retrieval_unavailable"
	codeUnauthorized         = "unauthorized"
	codeInternalError        = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// SearchRequest is the POST /api/v1/search body.
type SearchRequest struct {
	Query       string `json:"query"`
	UserID      string `json:"user_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	PriorQuery  string `json:"prior_query,omitempty"`
	Suggestions bool   `json:"suggestions,omitempty"`
}

// ProductResult is one ranked product in the search response.
type ProductResult struct {
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

// CompareGroup lists the products retrieved for one comparison entity, in
// ranked order. Empty product_ids marks an entity nothing was found for.
type CompareGroup struct {
	Entity     string   `json:"entity"`
	ProductIDs []string `json:"product_ids"`
}

// SearchResponse is the POST /api/v1/search reply.
type SearchResponse struct {
	Summary     string          `json:"summary"`
	Products    []ProductResult `json:"products"`
	Groups      []CompareGroup  `json:"groups,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Notes       []string        `json:"notes,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
}

// SuggestResponse is the GET /api/v1/suggest reply.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// HealthResponse is the GET /health reply.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func searchResponseFromPipeline(resp pipeline.Response) SearchResponse {
	out := SearchResponse{
		Summary:     resp.Narrative.Summary,
		Products:    make([]ProductResult, 0, len(resp.Products)),
		Suggestions: resp.Suggestions,
		Notes:       resp.Notes,
		Degraded:    resp.Narrative.Degraded,
	}

	for i := range resp.Products {
		out.Products = append(out.Products, productFromEntry(&resp.Products[i], resp.Narrative.PerProduct))
	}

	for _, g := range resp.Result.Groups() {
		entries := g.Entries()
		ids := make([]string, 0, len(entries))
		for i := range entries {
			p := entries[i].Product()
			ids = append(ids, p.ID())
		}
		out.Groups = append(out.Groups, CompareGroup{Entity: g.Entity(), ProductIDs: ids})
	}

	return out
}

func productFromEntry(e *domrank.Entry, explanations map[string]string) ProductResult {
	p := e.Product()
	return ProductResult{
		ID:          p.ID(),
		Name:        p.Name(),
		Price:       p.Price(),
		Category:    p.Category(),
		Brand:       p.Brand(),
		Rating:      p.Rating(),
		Score:       e.FinalScore(),
		Similarity:  e.RawSimilarity(),
		Tags:        e.Tags(),
		Explanation: explanations[p.ID()],
	}
}
