package pipeline

import (
	"context"

	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/profile"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
	"github.com/kailas-cloud/shopdex/internal/usecase/explain"
	"github.com/kailas-cloud/shopdex/internal/usecase/retrieve"
)

// Planner builds a structured intent from raw text.
type Planner interface {
	Plan(ctx context.Context, raw string, prior *query.Intent) (query.Intent, error)
}

// Retriever produces deduplicated candidates for an intent.
type Retriever interface {
	Retrieve(ctx context.Context, intent *query.Intent) (retrieve.Candidates, retrieve.Outcome, error)
}

// Personalizer scores candidates against a profile and builds the
// write-back delta.
type Personalizer interface {
	Personalize(ctx context.Context, set *candidate.Set, prof *profile.Profile, userID string) ([]domrank.Scored, profile.Delta)
}

// Guard drops scored candidates that violate merchandising policy before
// they are ranked.
type Guard interface {
	FilterScored(scored []domrank.Scored) []domrank.Scored
}

// Ranker fuses scores into the final deterministic order.
type Ranker interface {
	Rank(scored []domrank.Scored, intent *query.Intent, byEntity map[string][]string) domrank.Result
}

// Explainer builds the conversational narrative.
type Explainer interface {
	Explain(ctx context.Context, ranked *domrank.Result, intent *query.Intent) explain.Narrative
}

// ProfileReader loads the stored profile for a user.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (profile.Profile, error)
}

// DeltaSink accepts profile write-backs after the response is out.
type DeltaSink interface {
	Submit(d profile.Delta) bool
}

// Suggester produces related query completions.
type Suggester interface {
	Suggest(ctx context.Context, sessionID, raw string) ([]string, error)
}

// Recorder adds successful query phrases to the suggestion dictionary.
type Recorder interface {
	Record(ctx context.Context, phrase string) error
}
