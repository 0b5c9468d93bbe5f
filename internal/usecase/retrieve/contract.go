package retrieve

import (
	"context"

	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

// Embedder vectorizes the query keyword text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index runs filtered KNN retrieval. Indexable intent constraints are pushed
// down; returned candidates carry raw similarity and no matched-filter
// attribution.
type Index interface {
	SearchByIntent(ctx context.Context, vector []float32, i *query.Intent, k int) ([]candidate.Candidate, error)
}
