// Package candidate defines retrieval candidates and the deduplicated,
// capped set that hands them to personalization.
package candidate

import (
	"fmt"

	"github.com/kailas-cloud/shopdex/internal/domain/product"
)

// DefaultCap bounds a candidate set to keep downstream stage cost bounded.
const DefaultCap = 50

// Candidate is a product surfaced by vector retrieval, before
// personalization and ranking.
type Candidate struct {
	prod       product.Product
	similarity float64
	matched    []string
}

// New creates a candidate. matched lists the hard filters the candidate
// satisfies, by filter name.
func New(prod product.Product, similarity float64, matched []string) Candidate {
	return Candidate{prod: prod, similarity: similarity, matched: matched}
}

// Product returns the underlying product.
func (c *Candidate) Product() product.Product { return c.prod }

// ID returns the product identifier.
func (c *Candidate) ID() string { return c.prod.ID() }

// Similarity returns the raw similarity score (unitless, higher = closer).
func (c *Candidate) Similarity() float64 { return c.similarity }

// Matched returns the names of the satisfied hard filters.
func (c *Candidate) Matched() []string { return c.matched }

// MatchedCount returns how many hard filters the candidate satisfies.
func (c *Candidate) MatchedCount() int { return len(c.matched) }

// Set is a unique-by-identifier candidate collection in retrieval order.
// On duplicate insert the higher similarity wins.
type Set struct {
	cap   int
	order []string
	byID  map[string]Candidate
}

// NewSet creates an empty set with the given capacity.
// cap <= 0 falls back to DefaultCap.
func NewSet(cap int) *Set {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Set{cap: cap, byID: make(map[string]Candidate)}
}

// Add inserts a candidate. Duplicates keep the highest similarity; inserts
// beyond capacity are rejected with an error unless they improve an
// existing entry.
func (s *Set) Add(c Candidate) error {
	id := c.ID()
	if existing, ok := s.byID[id]; ok {
		if c.similarity > existing.similarity {
			s.byID[id] = c
		}
		return nil
	}
	if len(s.order) >= s.cap {
		return fmt.Errorf("candidate set full (cap %d), dropping %q", s.cap, id)
	}
	s.byID[id] = c
	s.order = append(s.order, id)
	return nil
}

// Len returns the number of unique candidates.
func (s *Set) Len() int { return len(s.order) }

// All returns candidates in retrieval order.
func (s *Set) All() []Candidate {
	out := make([]Candidate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the candidate for id.
func (s *Set) Get(id string) (Candidate, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Merge folds other into s, respecting dedupe and capacity.
// Entries that do not fit are silently dropped: merge is used to join
// per-entity comparison retrievals where a full set is acceptable.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, c := range other.All() {
		_ = s.Add(c)
	}
}
