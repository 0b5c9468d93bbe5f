package retrieve

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 4}, nil
}

type mockIndex struct {
	mu     sync.Mutex
	calls  int
	search func(call int, i *query.Intent, k int) ([]candidate.Candidate, error)
}

func (m *mockIndex) SearchByIntent(_ context.Context, _ []float32, i *query.Intent, k int) ([]candidate.Candidate, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.search(call, i, k)
}

func testConfig() Config {
	return Config{TopK: 10, Oversample: 3, MinViable: 5, MaxCandidates: 50, Attempts: 2}
}

func newService(e Embedder, i Index) *Service {
	relaxed := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_retrieval_relaxed_total"},
		[]string{"constraint"},
	)
	return New(e, i, testConfig(), relaxed, zap.NewNop())
}

func mkProduct(t *testing.T, id, brand string, price float64, attrs map[string]string) product.Product {
	t.Helper()
	p, err := product.New(id, "Product "+id, "desc", price, "laptops", brand, 4.0, attrs)
	if err != nil {
		t.Fatalf("product.New failed: %v", err)
	}
	return p
}

func mkIntent(t *testing.T, raw string, keywords []string, filters []query.NumericFilter, brands []string) query.Intent {
	t.Helper()
	i, err := query.New(raw, keywords, filters, nil, brands, nil, query.Search, false)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}
	return i
}

func priceLTE(t *testing.T, v float64) query.NumericFilter {
	t.Helper()
	f, err := query.NewNumericFilter("price", query.LTE, v, "usd")
	if err != nil {
		t.Fatalf("NewNumericFilter failed: %v", err)
	}
	return f
}

func TestRetrieve_DedupesAndAttributesFilters(t *testing.T) {
	intent := mkIntent(t, "laptop under $1500", []string{"laptop"},
		[]query.NumericFilter{priceLTE(t, 1500)}, nil)

	p1 := mkProduct(t, "p1", "dell", 1200, nil)
	p2 := mkProduct(t, "p2", "hp", 1600, nil)
	index := &mockIndex{
		search: func(_ int, _ *query.Intent, k int) ([]candidate.Candidate, error) {
			if k != 10 {
				t.Errorf("expected k=10 without spec filters, got %d", k)
			}
			return []candidate.Candidate{
				candidate.New(p1, 0.9, nil),
				candidate.New(p1, 0.7, nil), // duplicate, lower similarity
				candidate.New(p2, 0.8, nil),
				candidate.New(mkProduct(t, "p3", "dell", 1000, nil), 0.75, nil),
				candidate.New(mkProduct(t, "p4", "lenovo", 1400, nil), 0.7, nil),
				candidate.New(mkProduct(t, "p5", "acer", 900, nil), 0.65, nil),
			}, nil
		},
	}

	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Set.Len() != 5 {
		t.Fatalf("expected 5 unique candidates, got %d", got.Set.Len())
	}
	if out.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", out.Attempts)
	}
	if out.RelaxedConstraint != "" {
		t.Errorf("enough results, nothing to relax: %q", out.RelaxedConstraint)
	}

	c1, _ := got.Set.Get("p1")
	if c1.Similarity() != 0.9 {
		t.Errorf("dedupe should keep the higher similarity, got %g", c1.Similarity())
	}
	if !slices.Contains(c1.Matched(), "price") {
		t.Errorf("p1 satisfies the price filter: %v", c1.Matched())
	}

	// p2 is over budget: retained (price was not pushed down here) but
	// without the price match.
	c2, ok := got.Set.Get("p2")
	if !ok {
		t.Fatal("p2 missing")
	}
	if slices.Contains(c2.Matched(), "price") {
		t.Errorf("p2 fails the price filter: %v", c2.Matched())
	}
}

func TestRetrieve_OversamplesAndPostFiltersSpecs(t *testing.T) {
	battery, err := query.NewNumericFilter("battery_hours", query.GTE, 10, "hours")
	if err != nil {
		t.Fatalf("NewNumericFilter failed: %v", err)
	}
	intent := mkIntent(t, "laptop with 10 hours battery", []string{"laptop", "battery"},
		[]query.NumericFilter{battery}, nil)

	longLife := mkProduct(t, "p1", "dell", 1000, map[string]string{"battery_hours": "12"})
	shortLife := mkProduct(t, "p2", "hp", 900, map[string]string{"battery_hours": "6"})
	noAttr := mkProduct(t, "p3", "acer", 800, nil)

	index := &mockIndex{
		search: func(_ int, _ *query.Intent, k int) ([]candidate.Candidate, error) {
			if k != 30 {
				t.Errorf("expected oversampled k=30, got %d", k)
			}
			return []candidate.Candidate{
				candidate.New(longLife, 0.9, nil),
				candidate.New(shortLife, 0.85, nil),
				candidate.New(noAttr, 0.8, nil),
				candidate.New(mkProduct(t, "p4", "dell", 1100, map[string]string{"battery_hours": "11"}), 0.7, nil),
				candidate.New(mkProduct(t, "p5", "dell", 1150, map[string]string{"battery_hours": "14"}), 0.6, nil),
				candidate.New(mkProduct(t, "p6", "dell", 1150, map[string]string{"battery_hours": "10"}), 0.5, nil),
				candidate.New(mkProduct(t, "p7", "dell", 1150, map[string]string{"battery_hours": "16"}), 0.4, nil),
			}, nil
		},
	}

	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if _, ok := got.Set.Get("p2"); ok {
		t.Error("p2 fails the battery constraint and should be post-filtered")
	}
	if _, ok := got.Set.Get("p3"); ok {
		t.Error("p3 lacks the attribute and should be post-filtered")
	}
	if got.Set.Len() != 5 {
		t.Errorf("expected 5 passing candidates, got %d", got.Set.Len())
	}
	if out.RelaxedConstraint != "" {
		t.Errorf("no relaxation expected, got %q", out.RelaxedConstraint)
	}
}

func TestRetrieve_RetriesThenSucceeds(t *testing.T) {
	p := mkProduct(t, "p1", "dell", 1000, nil)
	index := &mockIndex{
		search: func(call int, _ *query.Intent, _ int) ([]candidate.Candidate, error) {
			if call == 1 {
				return nil, errors.New("index down")
			}
			return []candidate.Candidate{
				candidate.New(p, 0.9, nil),
				candidate.New(mkProduct(t, "p2", "hp", 900, nil), 0.8, nil),
				candidate.New(mkProduct(t, "p3", "hp", 800, nil), 0.7, nil),
				candidate.New(mkProduct(t, "p4", "hp", 700, nil), 0.6, nil),
				candidate.New(mkProduct(t, "p5", "hp", 600, nil), 0.5, nil),
			}, nil
		},
	}

	intent := mkIntent(t, "laptop", []string{"laptop"}, nil, nil)
	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Set.Len() != 5 {
		t.Errorf("expected 5 candidates, got %d", got.Set.Len())
	}
	if out.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", out.Attempts)
	}
}

func TestRetrieve_ExhaustedAttempts(t *testing.T) {
	index := &mockIndex{
		search: func(_ int, _ *query.Intent, _ int) ([]candidate.Candidate, error) {
			return nil, errors.New("index down")
		},
	}

	intent := mkIntent(t, "laptop", []string{"laptop"}, nil, nil)
	_, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if out.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", out.Attempts)
	}
	if index.calls != 2 {
		t.Errorf("expected 2 index calls, got %d", index.calls)
	}
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	intent := mkIntent(t, "laptop", []string{"laptop"}, nil, nil)
	index := &mockIndex{
		search: func(_ int, _ *query.Intent, _ int) ([]candidate.Candidate, error) {
			t.Fatal("index should not be queried")
			return nil, nil
		},
	}

	_, _, err := newService(&mockEmbedder{err: errors.New("provider down")}, index).
		Retrieve(context.Background(), &intent)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieve_RelaxesBrandFirst(t *testing.T) {
	intent := mkIntent(t, "dell laptop under $1500", []string{"laptop"},
		[]query.NumericFilter{priceLTE(t, 1500)}, []string{"dell"})

	index := &mockIndex{
		search: func(_ int, i *query.Intent, _ int) ([]candidate.Candidate, error) {
			if len(i.Brands()) > 0 {
				// Brand-constrained pass: too few results.
				return []candidate.Candidate{
					candidate.New(mkProduct(t, "d1", "dell", 1200, nil), 0.9, nil),
				}, nil
			}
			// Relaxed pass opens up other brands.
			return []candidate.Candidate{
				candidate.New(mkProduct(t, "d1", "dell", 1200, nil), 0.9, nil),
				candidate.New(mkProduct(t, "h1", "hp", 1100, nil), 0.85, nil),
				candidate.New(mkProduct(t, "l1", "lenovo", 1300, nil), 0.8, nil),
				candidate.New(mkProduct(t, "a1", "acer", 900, nil), 0.75, nil),
				candidate.New(mkProduct(t, "m1", "msi", 1400, nil), 0.7, nil),
			}, nil
		},
	}

	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if out.RelaxedConstraint != "brand" {
		t.Fatalf("expected brand relaxation, got %q", out.RelaxedConstraint)
	}
	if got.Set.Len() != 5 {
		t.Errorf("expected 5 candidates after relaxation, got %d", got.Set.Len())
	}

	// Matched filters are attributed against the original intent.
	d1, _ := got.Set.Get("d1")
	if !slices.Contains(d1.Matched(), "brand") {
		t.Errorf("d1 matches the original brand filter: %v", d1.Matched())
	}
	h1, _ := got.Set.Get("h1")
	if slices.Contains(h1.Matched(), "brand") {
		t.Errorf("h1 does not match the original brand filter: %v", h1.Matched())
	}
	if !slices.Contains(h1.Matched(), "price") {
		t.Errorf("h1 matches the price filter: %v", h1.Matched())
	}
}

func TestRetrieve_NoRelaxationWithoutFilters(t *testing.T) {
	index := &mockIndex{
		search: func(_ int, _ *query.Intent, _ int) ([]candidate.Candidate, error) {
			return []candidate.Candidate{
				candidate.New(mkProduct(t, "p1", "dell", 1000, nil), 0.9, nil),
			}, nil
		},
	}

	intent := mkIntent(t, "laptop", []string{"laptop"}, nil, nil)
	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if out.RelaxedConstraint != "" {
		t.Errorf("nothing to relax, got %q", out.RelaxedConstraint)
	}
	if index.calls != 1 {
		t.Errorf("expected a single index call, got %d", index.calls)
	}
	if got.Set.Len() != 1 {
		t.Errorf("expected 1 candidate, got %d", got.Set.Len())
	}
}

func TestRetrieve_CompareDegradesFailedEntity(t *testing.T) {
	intent, err := query.New("macbook vs xps", []string{"macbook", "xps"}, nil, nil, nil,
		[]string{"macbook", "xps"}, query.Compare, false)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}

	index := &mockIndex{
		search: func(_ int, i *query.Intent, _ int) ([]candidate.Candidate, error) {
			if slices.Contains(i.Keywords(), "macbook") {
				return []candidate.Candidate{
					candidate.New(mkProduct(t, "mb1", "apple", 1300, nil), 0.9, nil),
				}, nil
			}
			return nil, errors.New("index down")
		},
	}

	got, out, err := newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !slices.Contains(out.DegradedEntities, "xps") {
		t.Errorf("expected xps degradation, got %v", out.DegradedEntities)
	}
	if len(got.ByEntity["macbook"]) != 1 || got.ByEntity["macbook"][0] != "mb1" {
		t.Errorf("unexpected macbook candidates: %v", got.ByEntity["macbook"])
	}
	if got.ByEntity["xps"] != nil {
		t.Errorf("failed entity should have no candidates: %v", got.ByEntity["xps"])
	}
	if got.Set.Len() != 1 {
		t.Errorf("expected merged set of 1, got %d", got.Set.Len())
	}
}

func TestRetrieve_CompareAllEntitiesFailed(t *testing.T) {
	intent, err := query.New("macbook vs xps", []string{"macbook", "xps"}, nil, nil, nil,
		[]string{"macbook", "xps"}, query.Compare, false)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}

	index := &mockIndex{
		search: func(_ int, _ *query.Intent, _ int) ([]candidate.Candidate, error) {
			return nil, errors.New("index down")
		},
	}

	_, _, err = newService(&mockEmbedder{}, index).Retrieve(context.Background(), &intent)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}
