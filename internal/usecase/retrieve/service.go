// Package retrieve implements vector retrieval: embedding, filtered KNN with
// retry, in-memory post-filtering, and single-step constraint relaxation.
package retrieve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

// retryBackoff separates consecutive index attempts.
const retryBackoff = 50 * time.Millisecond

// Config bounds retrieval behavior.
type Config struct {
	TopK          int
	Oversample    int // KNN multiplier when post-filtering is needed
	MinViable     int // below this, one constraint is relaxed and retried
	MaxCandidates int
	Attempts      int
}

// Outcome reports what retrieval had to do to produce its candidates.
type Outcome struct {
	RelaxedConstraint string   // empty when no relaxation happened
	DegradedEntities  []string // comparison entities whose retrieval failed
	Attempts          int      // total index calls
}

// Candidates is the retrieval output. ByEntity maps comparison entities to
// their candidate ids and is nil outside compare mode.
type Candidates struct {
	Set      *candidate.Set
	ByEntity map[string][]string
}

// Service is the retrieval agent.
type Service struct {
	embed   Embedder
	index   Index
	cfg     Config
	relaxed *prometheus.CounterVec
	logger  *zap.Logger
}

// New creates a retrieval service. relaxed counts constraint relaxations by
// constraint name.
func New(embed Embedder, index Index, cfg Config, relaxed *prometheus.CounterVec, logger *zap.Logger) *Service {
	return &Service{embed: embed, index: index, cfg: cfg, relaxed: relaxed, logger: logger}
}

// Retrieve produces deduplicated candidates for the intent. Compare mode
// retrieves per entity in parallel; a failed entity degrades to an empty
// group instead of failing the call.
func (s *Service) Retrieve(ctx context.Context, intent *query.Intent) (Candidates, Outcome, error) {
	if intent.Mode() == query.Compare {
		return s.retrieveCompare(ctx, intent)
	}
	set, out, err := s.retrieveOne(ctx, intent)
	if err != nil {
		return Candidates{}, out, err
	}
	return Candidates{Set: set}, out, nil
}

func (s *Service) retrieveOne(ctx context.Context, intent *query.Intent) (*candidate.Set, Outcome, error) {
	var out Outcome

	set, err := s.search(ctx, intent, intent, &out)
	if err != nil {
		return nil, out, err
	}

	if set.Len() < s.cfg.MinViable {
		relaxedIntent, constraint, ok := relax(intent)
		if ok {
			retried, err := s.search(ctx, &relaxedIntent, intent, &out)
			if err == nil {
				s.relaxed.WithLabelValues(constraint).Inc()
				out.RelaxedConstraint = constraint
				set = retried
			} else {
				s.logger.Warn("relaxed retry failed, keeping original candidates",
					zap.String("constraint", constraint), zap.Error(err))
			}
		}
	}

	return set, out, nil
}

// search embeds the effective intent, queries the index and post-filters.
// Matched-filter attribution always runs against the original intent so a
// relaxed retrieval still reports which constraints each candidate misses.
func (s *Service) search(
	ctx context.Context, effective, original *query.Intent, out *Outcome,
) (*candidate.Set, error) {
	emb, err := s.embed.Embed(ctx, effective.KeywordText())
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrievalUnavailable, err)
	}

	specs := specFilters(effective)
	k := s.cfg.TopK
	if len(specs) > 0 {
		// Spec constraints are not indexed, so oversample before
		// post-filtering in memory.
		k = s.cfg.TopK * s.cfg.Oversample
	}

	cands, err := s.searchWithRetry(ctx, emb.Embedding, effective, k, out)
	if err != nil {
		return nil, err
	}

	set := candidate.NewSet(s.cfg.MaxCandidates)
	for i := range cands {
		c := &cands[i]
		if !passesSpecs(c, specs) {
			continue
		}
		prod := c.Product()
		_ = set.Add(candidate.New(prod, c.Similarity(), matchedFilters(&prod, original)))
		if set.Len() >= s.cfg.TopK {
			break
		}
	}
	return set, nil
}

func (s *Service) searchWithRetry(
	ctx context.Context, vector []float32, intent *query.Intent, k int, out *Outcome,
) ([]candidate.Candidate, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		out.Attempts++
		cands, err := s.index.SearchByIntent(ctx, vector, intent, k)
		if err == nil {
			return cands, nil
		}
		lastErr = err
		s.logger.Warn("index search failed",
			zap.Int("attempt", attempt), zap.Error(err))

		if attempt < s.cfg.Attempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, ctx.Err())
			case <-time.After(retryBackoff):
			}
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, lastErr)
}

func (s *Service) retrieveCompare(ctx context.Context, intent *query.Intent) (Candidates, Outcome, error) {
	entities := intent.CompareEntities()

	type entityResult struct {
		set *candidate.Set
		out Outcome
		err error
	}
	results := make([]entityResult, len(entities))

	var wg sync.WaitGroup
	for i, entity := range entities {
		wg.Add(1)
		go func(i int, entity string) {
			defer wg.Done()
			sub := intent.ForEntity(entity)
			set, out, err := s.retrieveOne(ctx, &sub)
			results[i] = entityResult{set: set, out: out, err: err}
		}(i, entity)
	}
	wg.Wait()

	merged := candidate.NewSet(s.cfg.MaxCandidates)
	byEntity := make(map[string][]string, len(entities))
	var out Outcome
	allFailed := true

	for i, entity := range entities {
		r := &results[i]
		out.Attempts += r.out.Attempts
		if out.RelaxedConstraint == "" {
			out.RelaxedConstraint = r.out.RelaxedConstraint
		}
		if r.err != nil {
			s.logger.Warn("comparison entity retrieval failed",
				zap.String("entity", entity), zap.Error(r.err))
			out.DegradedEntities = append(out.DegradedEntities, entity)
			byEntity[entity] = nil
			continue
		}
		allFailed = false
		ids := make([]string, 0, r.set.Len())
		for _, c := range r.set.All() {
			ids = append(ids, c.ID())
		}
		byEntity[entity] = ids
		merged.Merge(r.set)
	}

	if allFailed {
		return Candidates{}, out, fmt.Errorf("%w: all comparison retrievals failed", domain.ErrRetrievalUnavailable)
	}
	return Candidates{Set: merged, ByEntity: byEntity}, out, nil
}

// relax drops the least-specific constraint: brand, then price, then specs.
func relax(intent *query.Intent) (query.Intent, string, bool) {
	if len(intent.Brands()) > 0 {
		return intent.WithoutBrands(), "brand", true
	}
	if _, ok := intent.PriceFilter(); ok {
		return intent.WithoutPrice(), "price", true
	}
	if len(specFilters(intent)) > 0 {
		return intent.WithoutSpecs(), "specs", true
	}
	return query.Intent{}, "", false
}

// specFilters returns numeric constraints on non-indexed attribute fields.
func specFilters(intent *query.Intent) []query.NumericFilter {
	var specs []query.NumericFilter
	for _, f := range intent.Numeric() {
		if f.Field() != "price" {
			specs = append(specs, f)
		}
	}
	return specs
}

// passesSpecs applies attribute constraints in memory. A product missing the
// attribute fails the constraint.
func passesSpecs(c *candidate.Candidate, specs []query.NumericFilter) bool {
	prod := c.Product()
	for _, f := range specs {
		v, ok := fieldValue(&prod, f.Field())
		if !ok || !f.Matches(v) {
			return false
		}
	}
	return true
}

// matchedFilters names the original intent's hard filters the product
// satisfies, feeding the ranking constraint bonus.
func matchedFilters(prod *product.Product, original *query.Intent) []string {
	var matched []string
	if len(original.Brands()) > 0 && brandMatches(original.Brands(), prod.Brand()) {
		matched = append(matched, "brand")
	}
	for _, f := range original.Numeric() {
		if v, ok := fieldValue(prod, f.Field()); ok && f.Matches(v) {
			matched = append(matched, f.Field())
		}
	}
	return matched
}

func brandMatches(brands []string, brand string) bool {
	for _, b := range brands {
		if strings.EqualFold(b, brand) {
			return true
		}
	}
	return false
}

func fieldValue(prod *product.Product, field string) (float64, bool) {
	if field == "price" {
		return prod.Price(), true
	}
	raw, ok := prod.Attributes()[field]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
