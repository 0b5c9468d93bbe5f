// Package rank fuses retrieval similarity, personalization and constraint
// satisfaction into the final deterministic ordering.
package rank

import (
	"sort"

	"github.com/kailas-cloud/shopdex/internal/domain/query"
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
)

// Config holds the fusion weights and the tie-break epsilon.
// The config layer validates that alpha+beta+gamma sum to 1.
type Config struct {
	Alpha   float64 // normalized similarity
	Beta    float64 // personalization
	Gamma   float64 // constraint bonus
	Epsilon float64 // scores closer than this are tied
}

// Service is the ranking agent. Pure: same input, same order.
type Service struct {
	cfg Config
}

// New creates a ranking service.
func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

type row struct {
	entry      domrank.Entry
	id         string
	price      float64
	rawSim     float64
	finalScore float64
}

// Rank orders scored candidates by fused score. byEntity groups compare-mode
// results per entity in the intent's requested order and is ignored
// otherwise.
func (s *Service) Rank(scored []domrank.Scored, intent *query.Intent, byEntity map[string][]string) domrank.Result {
	rows := s.fuse(scored, intent)
	_, hasPrice := intent.PriceFilter()

	if intent.Mode() == query.Compare {
		return s.rankCompare(rows, intent, byEntity, hasPrice)
	}

	s.sortRows(rows, hasPrice)
	return domrank.NewResult(entriesOf(rows))
}

// fuse computes final = α·normSimilarity + β·personalization + γ·bonus.
// Similarity is min-max normalized over the whole candidate set; a single
// candidate (or a flat set) normalizes to 1.
func (s *Service) fuse(scored []domrank.Scored, intent *query.Intent) []row {
	minSim, maxSim := simRange(scored)
	filterCount := intent.FilterCount()

	rows := make([]row, 0, len(scored))
	for i := range scored {
		sc := &scored[i]
		cand := sc.Candidate()
		prod := cand.Product()

		normSim := 1.0
		if maxSim > minSim {
			normSim = (cand.Similarity() - minSim) / (maxSim - minSim)
		}

		bonus := 1.0
		if filterCount > 0 {
			bonus = float64(cand.MatchedCount()) / float64(filterCount)
		}

		final := s.cfg.Alpha*normSim + s.cfg.Beta*sc.Score() + s.cfg.Gamma*bonus
		rows = append(rows, row{
			entry:      domrank.NewEntry(prod, final, cand.Similarity(), sc.Score(), sc.Tags()),
			id:         prod.ID(),
			price:      prod.Price(),
			rawSim:     cand.Similarity(),
			finalScore: final,
		})
	}
	return rows
}

func (s *Service) rankCompare(rows []row, intent *query.Intent, byEntity map[string][]string, hasPrice bool) domrank.Result {
	byID := make(map[string]row, len(rows))
	for _, r := range rows {
		byID[r.id] = r
	}

	groups := make([]domrank.Group, 0, len(intent.CompareEntities()))
	for _, entity := range intent.CompareEntities() {
		var groupRows []row
		for _, id := range byEntity[entity] {
			if r, ok := byID[id]; ok {
				groupRows = append(groupRows, r)
			}
		}
		s.sortRows(groupRows, hasPrice)
		groups = append(groups, domrank.NewGroup(entity, entriesOf(groupRows)))
	}
	return domrank.NewCompareResult(groups)
}

// sortRows applies the total order: fused score desc, then within epsilon
// raw similarity desc, price asc when a price filter exists, id asc.
func (s *Service) sortRows(rows []row, hasPrice bool) {
	eps := s.cfg.Epsilon
	sort.Slice(rows, func(a, b int) bool {
		ra, rb := &rows[a], &rows[b]
		if ra.finalScore-rb.finalScore > eps {
			return true
		}
		if rb.finalScore-ra.finalScore > eps {
			return false
		}
		if ra.rawSim-rb.rawSim > eps {
			return true
		}
		if rb.rawSim-ra.rawSim > eps {
			return false
		}
		if hasPrice && ra.price != rb.price {
			return ra.price < rb.price
		}
		return ra.id < rb.id
	})
}

func simRange(scored []domrank.Scored) (minSim, maxSim float64) {
	for i := range scored {
		cand := scored[i].Candidate()
		sim := cand.Similarity()
		if i == 0 || sim < minSim {
			minSim = sim
		}
		if i == 0 || sim > maxSim {
			maxSim = sim
		}
	}
	return minSim, maxSim
}

func entriesOf(rows []row) []domrank.Entry {
	if len(rows) == 0 {
		return nil
	}
	entries := make([]domrank.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}
	return entries
}
