package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/profile"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
	"github.com/kailas-cloud/shopdex/internal/usecase/explain"
	"github.com/kailas-cloud/shopdex/internal/usecase/retrieve"
)

type mockPlanner struct {
	planFn func(raw string, prior *query.Intent) (query.Intent, error)
}

func (m *mockPlanner) Plan(_ context.Context, raw string, prior *query.Intent) (query.Intent, error) {
	return m.planFn(raw, prior)
}

type mockRetriever struct {
	calls      int
	retrieveFn func(i *query.Intent) (retrieve.Candidates, retrieve.Outcome, error)
}

func (m *mockRetriever) Retrieve(_ context.Context, i *query.Intent) (retrieve.Candidates, retrieve.Outcome, error) {
	m.calls++
	return m.retrieveFn(i)
}

type mockPersonalizer struct {
	gotProfile *profile.Profile
	gotUserID  string
	delta      profile.Delta
}

func (m *mockPersonalizer) Personalize(
	_ context.Context, set *candidate.Set, prof *profile.Profile, userID string,
) ([]domrank.Scored, profile.Delta) {
	m.gotProfile = prof
	m.gotUserID = userID

	var scored []domrank.Scored
	for _, c := range set.All() {
		sc, _ := domrank.NewScored(c, 0, nil)
		scored = append(scored, sc)
	}
	return scored, m.delta
}

type mockGuard struct {
	drop map[string]bool
}

func (m *mockGuard) FilterScored(scored []domrank.Scored) []domrank.Scored {
	kept := make([]domrank.Scored, 0, len(scored))
	for i := range scored {
		c := scored[i].Candidate()
		if m.drop[c.ID()] {
			continue
		}
		kept = append(kept, scored[i])
	}
	return kept
}

type mockRanker struct{}

func (mockRanker) Rank(scored []domrank.Scored, _ *query.Intent, _ map[string][]string) domrank.Result {
	entries := make([]domrank.Entry, 0, len(scored))
	for i := range scored {
		cand := scored[i].Candidate()
		entries = append(entries, domrank.NewEntry(cand.Product(), cand.Similarity(), cand.Similarity(), 0, nil))
	}
	return domrank.NewResult(entries)
}

type mockExplainer struct {
	narrative explain.Narrative
}

func (m *mockExplainer) Explain(_ context.Context, _ *domrank.Result, _ *query.Intent) explain.Narrative {
	return m.narrative
}

type mockProfiles struct {
	prof profile.Profile
	err  error
}

func (m *mockProfiles) Get(_ context.Context, _ string) (profile.Profile, error) {
	return m.prof, m.err
}

type mockSink struct {
	mu     sync.Mutex
	deltas []profile.Delta
}

func (m *mockSink) Submit(d profile.Delta) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, d)
	return true
}

func (m *mockSink) submitted() []profile.Delta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]profile.Delta(nil), m.deltas...)
}

type mockSuggester struct {
	out []string
	err error
}

func (m *mockSuggester) Suggest(_ context.Context, _, _ string) ([]string, error) {
	return m.out, m.err
}

type mockRecorder struct {
	recorded chan string
}

func (m *mockRecorder) Record(_ context.Context, phrase string) error {
	m.recorded <- phrase
	return nil
}

func testIntent(t *testing.T, raw string) query.Intent {
	t.Helper()
	i, err := query.New(raw, strings.Fields(raw), nil, nil, nil, nil, query.Search, false)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}
	return i
}

func testCandidates(t *testing.T, n int) retrieve.Candidates {
	t.Helper()
	set := candidate.NewSet(0)
	for i := 0; i < n; i++ {
		p, err := product.New(fmt.Sprintf("p%d", i), fmt.Sprintf("Product %d", i), "desc",
			1000, "laptops", "dell", 4.0, nil)
		if err != nil {
			t.Fatalf("product.New failed: %v", err)
		}
		if err := set.Add(candidate.New(p, 0.9-float64(i)*0.05, nil)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	return retrieve.Candidates{Set: set}
}

type fixture struct {
	planner      *mockPlanner
	retriever    *mockRetriever
	personalizer *mockPersonalizer
	guard        *mockGuard
	sink         *mockSink
	suggester    *mockSuggester
	recorder     *mockRecorder
	svc          *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		planner: &mockPlanner{
			planFn: func(raw string, _ *query.Intent) (query.Intent, error) {
				if strings.TrimSpace(raw) == "" {
					return query.Intent{}, fmt.Errorf("%w: empty query text", domain.ErrMalformedQuery)
				}
				return testIntent(t, raw), nil
			},
		},
		retriever: &mockRetriever{
			retrieveFn: func(_ *query.Intent) (retrieve.Candidates, retrieve.Outcome, error) {
				return testCandidates(t, 3), retrieve.Outcome{Attempts: 1}, nil
			},
		},
		personalizer: &mockPersonalizer{},
		guard:        &mockGuard{},
		sink:         &mockSink{},
		suggester:    &mockSuggester{out: []string{"gaming laptop"}},
		recorder:     &mockRecorder{recorded: make(chan string, 1)},
	}

	cfg := Config{
		PlanTimeout:        50 * time.Millisecond,
		RetrieveTimeout:    800 * time.Millisecond,
		PersonalizeTimeout: 200 * time.Millisecond,
		RankTimeout:        20 * time.Millisecond,
		ExplainTimeout:     500 * time.Millisecond,
		MaxProducts:        10,
	}
	f.svc = New(
		f.planner, f.retriever, f.personalizer, f.guard, mockRanker{},
		&mockExplainer{narrative: explain.Narrative{Summary: "done"}},
		&mockProfiles{err: domain.ErrProfileNotFound},
		f.sink, f.suggester, f.recorder, cfg, zap.NewNop(),
	)
	return f
}

func TestSearch_HappyPath(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.State != StateDone {
		t.Errorf("expected done state, got %s", resp.State)
	}
	if len(resp.Products) != 3 {
		t.Errorf("expected 3 products, got %d", len(resp.Products))
	}
	if resp.Narrative.Summary != "done" {
		t.Errorf("unexpected narrative: %+v", resp.Narrative)
	}
	if len(resp.Notes) != 0 {
		t.Errorf("expected no notes, got %v", resp.Notes)
	}
}

func TestSearch_MalformedQueryFails(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Search(context.Background(), Request{Query: "  "})
	if !errors.Is(err, domain.ErrMalformedQuery) {
		t.Fatalf("expected ErrMalformedQuery, got %v", err)
	}
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "plan" {
		t.Errorf("failure should name the plan stage, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("expected failed state, got %s", resp.State)
	}
	if f.retriever.calls != 0 {
		t.Error("retrieval must not run after a failed plan")
	}
}

func TestSearch_RetrievalUnavailableFails(t *testing.T) {
	f := newFixture(t)
	f.retriever.retrieveFn = func(_ *query.Intent) (retrieve.Candidates, retrieve.Outcome, error) {
		return retrieve.Candidates{}, retrieve.Outcome{Attempts: 2},
			fmt.Errorf("%w: index down", domain.ErrRetrievalUnavailable)
	}

	resp, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "retrieve" {
		t.Errorf("failure should name the retrieve stage, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("expected failed state, got %s", resp.State)
	}
}

func TestSearch_GuardDropsFlaggedProducts(t *testing.T) {
	f := newFixture(t)
	f.guard.drop = map[string]bool{"p1": true}

	resp, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Products) != 2 {
		t.Fatalf("expected 2 products after filtering, got %d", len(resp.Products))
	}
	for i := range resp.Products {
		if resp.Products[i].Product().ID() == "p1" {
			t.Error("flagged product must not appear in the response")
		}
	}
}

func TestSearch_ProfileErrorDegradesToNeutral(t *testing.T) {
	f := newFixture(t)
	f.svc.profiles = &mockProfiles{err: errors.New("store down")}

	resp, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop", UserID: "u1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.State != StateDone {
		t.Errorf("profile failure must not fail the search, got %s", resp.State)
	}
	if f.personalizer.gotProfile != nil {
		t.Error("personalizer should receive the neutral (nil) profile")
	}
	if f.personalizer.gotUserID != "u1" {
		t.Errorf("user id must still reach personalization, got %q", f.personalizer.gotUserID)
	}
}

func TestSearch_RelaxationNote(t *testing.T) {
	f := newFixture(t)
	f.retriever.retrieveFn = func(_ *query.Intent) (retrieve.Candidates, retrieve.Outcome, error) {
		return testCandidates(t, 3), retrieve.Outcome{Attempts: 2, RelaxedConstraint: "brand"}, nil
	}

	resp, err := f.svc.Search(context.Background(), Request{Query: "dell laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Notes) != 1 || !strings.Contains(resp.Notes[0], "brand") {
		t.Errorf("expected a brand relaxation note, got %v", resp.Notes)
	}
}

func TestSearch_ProductCap(t *testing.T) {
	f := newFixture(t)
	f.retriever.retrieveFn = func(_ *query.Intent) (retrieve.Candidates, retrieve.Outcome, error) {
		return testCandidates(t, 15), retrieve.Outcome{Attempts: 1}, nil
	}

	resp, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Products) != 10 {
		t.Errorf("expected cap of 10 products, got %d", len(resp.Products))
	}
	if resp.Result.Len() != 15 {
		t.Errorf("full result should keep all entries, got %d", resp.Result.Len())
	}
}

func TestSearch_DeltaSubmittedForKnownUser(t *testing.T) {
	f := newFixture(t)
	f.personalizer.delta = profile.Delta{
		UserID: "u1",
		Nudges: map[string]float64{"laptops": profile.AffinityNudge},
	}

	if _, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop", UserID: "u1"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	deltas := f.sink.submitted()
	if len(deltas) != 1 || deltas[0].UserID != "u1" {
		t.Errorf("expected one delta for u1, got %v", deltas)
	}
}

func TestSearch_NoDeltaForAnonymous(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(f.sink.submitted()) != 0 {
		t.Errorf("anonymous search must not write back: %v", f.sink.submitted())
	}
}

func TestSearch_RecordsQueryPhrase(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	select {
	case phrase := <-f.recorder.recorded:
		if phrase != "gaming laptop" {
			t.Errorf("unexpected recorded phrase: %q", phrase)
		}
	case <-time.After(time.Second):
		t.Fatal("query phrase was not recorded")
	}
}

func TestSearch_InlineSuggestions(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Search(context.Background(),
		Request{Query: "gaming laptop", SessionID: "s1", GenerateSuggestions: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0] != "gaming laptop" {
		t.Errorf("unexpected suggestions: %v", resp.Suggestions)
	}

	respNo, err := f.svc.Search(context.Background(), Request{Query: "gaming laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if respNo.Suggestions != nil {
		t.Errorf("suggestions must be opt-in, got %v", respNo.Suggestions)
	}
}

func TestSearch_PriorTurnFeedsPlanner(t *testing.T) {
	f := newFixture(t)
	var gotPrior *query.Intent
	f.planner.planFn = func(raw string, prior *query.Intent) (query.Intent, error) {
		if raw == "cheaper ones" {
			gotPrior = prior
		}
		return testIntent(t, raw), nil
	}

	_, err := f.svc.Search(context.Background(),
		Request{Query: "cheaper ones", PriorQuery: "gaming laptop"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotPrior == nil {
		t.Fatal("prior intent was not passed to the planner")
	}
	if gotPrior.Raw() != "gaming laptop" {
		t.Errorf("unexpected prior: %q", gotPrior.Raw())
	}
}

func TestSearch_LowConfidenceNote(t *testing.T) {
	f := newFixture(t)
	f.planner.planFn = func(raw string, _ *query.Intent) (query.Intent, error) {
		i, err := query.New(raw, strings.Fields(raw), nil, nil, nil, nil, query.Search, true)
		if err != nil {
			t.Fatalf("query.New failed: %v", err)
		}
		return i, nil
	}

	resp, err := f.svc.Search(context.Background(), Request{Query: "laptop under 1500"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Notes) != 1 || !strings.Contains(resp.Notes[0], "unit") {
		t.Errorf("expected a dropped-constraint note, got %v", resp.Notes)
	}
}
