// Package rank defines scored candidates and the final ordered result.
package rank

import (
	"fmt"

	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

// Scored is a candidate annotated with its personalization score in [0,1]
// and the rationale tags that produced it.
type Scored struct {
	cand  candidate.Candidate
	score float64
	tags  []string
}

// NewScored validates and creates a scored candidate.
func NewScored(cand candidate.Candidate, score float64, tags []string) (Scored, error) {
	if score < 0 || score > 1 {
		return Scored{}, fmt.Errorf("personalization score for %q out of [0,1]: %g", cand.ID(), score)
	}
	return Scored{cand: cand, score: score, tags: tags}, nil
}

// Candidate returns the underlying retrieval candidate.
func (s *Scored) Candidate() candidate.Candidate { return s.cand }

// Score returns the normalized personalization score.
func (s *Scored) Score() float64 { return s.score }

// Tags returns the rationale tags.
func (s *Scored) Tags() []string { return s.tags }

// Entry is one row of the final ranking.
type Entry struct {
	prod            product.Product
	finalScore      float64
	rawSimilarity   float64
	personalization float64
	tags            []string
}

// NewEntry creates a ranking entry.
func NewEntry(
	prod product.Product,
	finalScore, rawSimilarity, personalization float64,
	tags []string,
) Entry {
	return Entry{
		prod:            prod,
		finalScore:      finalScore,
		rawSimilarity:   rawSimilarity,
		personalization: personalization,
		tags:            tags,
	}
}

// Product returns the ranked product.
func (e *Entry) Product() product.Product { return e.prod }

// FinalScore returns the fused score.
func (e *Entry) FinalScore() float64 { return e.finalScore }

// RawSimilarity returns the retrieval similarity.
func (e *Entry) RawSimilarity() float64 { return e.rawSimilarity }

// Personalization returns the personalization component.
func (e *Entry) Personalization() float64 { return e.personalization }

// Tags returns the explanation tags.
func (e *Entry) Tags() []string { return e.tags }

// Group is the per-entity slice of a comparison result.
type Group struct {
	entity  string
	entries []Entry
}

// NewGroup creates a comparison group.
func NewGroup(entity string, entries []Entry) Group {
	return Group{entity: entity, entries: entries}
}

// Entity returns the comparison entity the group belongs to.
func (g *Group) Entity() string { return g.entity }

// Entries returns the group rows in score order.
func (g *Group) Entries() []Entry { return g.entries }

// Result is the immutable final ranking. In compare mode entries are the
// concatenation of the groups in entity-requested order; otherwise groups
// is empty and entries are in fused-score order.
type Result struct {
	mode    query.Mode
	entries []Entry
	groups  []Group
}

// NewResult creates a search-mode result. The caller guarantees order.
func NewResult(entries []Entry) Result {
	return Result{mode: query.Search, entries: entries}
}

// NewCompareResult creates a compare-mode result from per-entity groups in
// entity-requested order.
func NewCompareResult(groups []Group) Result {
	var entries []Entry
	for _, g := range groups {
		entries = append(entries, g.entries...)
	}
	return Result{mode: query.Compare, entries: entries, groups: groups}
}

// Mode returns the ranking mode.
func (r *Result) Mode() query.Mode { return r.mode }

// Entries returns all rows in final order.
func (r *Result) Entries() []Entry { return r.entries }

// Groups returns comparison groups, empty outside compare mode.
func (r *Result) Groups() []Group { return r.groups }

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.entries) }

// Top returns at most n leading entries.
func (r *Result) Top(n int) []Entry {
	if n <= 0 || n >= len(r.entries) {
		return r.entries
	}
	return r.entries[:n]
}
