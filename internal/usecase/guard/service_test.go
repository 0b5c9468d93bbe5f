package guard

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/rank"
)

func newService() *Service {
	filtered := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_guard_filtered_total"},
		[]string{"reason"},
	)
	return New(Config{MinPrice: 1, MaxPrice: 100000}, filtered, zap.NewNop())
}

func mkScored(t *testing.T, id, name, desc string, price float64) rank.Scored {
	t.Helper()
	p, err := product.New(id, name, desc, price, "laptops", "dell", 4.0, nil)
	if err != nil {
		t.Fatalf("product.New failed: %v", err)
	}
	sc, err := rank.NewScored(candidate.New(p, 0.9, nil), 0.5, nil)
	if err != nil {
		t.Fatalf("NewScored failed: %v", err)
	}
	return sc
}

func ids(scored []rank.Scored) []string {
	out := make([]string, 0, len(scored))
	for i := range scored {
		c := scored[i].Candidate()
		out = append(out, c.ID())
	}
	return out
}

func TestFilterScored_DropsBannedName(t *testing.T) {
	scored := []rank.Scored{
		mkScored(t, "p1", "UltraBook 14", "thin and light", 1200),
		mkScored(t, "p2", "Replica AirMax Pro", "looks identical", 80),
	}

	kept := newService().FilterScored(scored)
	if got := ids(kept); len(got) != 1 || got[0] != "p1" {
		t.Errorf("expected only p1 to survive, got %v", got)
	}
}

func TestFilterScored_DropsBannedDescription(t *testing.T) {
	scored := []rank.Scored{
		mkScored(t, "p1", "Wireless Earbuds", "counterfeit-grade clone of the original", 40),
	}

	if kept := newService().FilterScored(scored); len(kept) != 0 {
		t.Errorf("flagged description must be dropped, got %v", ids(kept))
	}
}

func TestFilterScored_DropsImplausiblePrices(t *testing.T) {
	scored := []rank.Scored{
		mkScored(t, "p1", "Gaming Laptop", "desc", 0.49),
		mkScored(t, "p2", "Gaming Laptop", "desc", 500000),
		mkScored(t, "p3", "Gaming Laptop", "desc", 1500),
	}

	kept := newService().FilterScored(scored)
	if got := ids(kept); len(got) != 1 || got[0] != "p3" {
		t.Errorf("expected only the sane price to survive, got %v", got)
	}
}

func TestFilterScored_PreservesOrder(t *testing.T) {
	scored := []rank.Scored{
		mkScored(t, "p1", "Laptop A", "desc", 1000),
		mkScored(t, "p2", "Laptop B", "desc", 1100),
		mkScored(t, "p3", "Laptop C", "desc", 1200),
	}

	kept := newService().FilterScored(scored)
	got := ids(kept)
	if len(got) != 3 || got[0] != "p1" || got[1] != "p2" || got[2] != "p3" {
		t.Errorf("order must be preserved, got %v", got)
	}
}

func TestFlaggedTerm(t *testing.T) {
	tests := []struct {
		text string
		term string
		want bool
	}{
		{"a counterfeit watch", "counterfeit", true},
		{"Fake leather case", "fake", true},
		{"1:1 REPLICA sneakers", "replica", true},
		{"genuine leather case", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		term, got := FlaggedTerm(tc.text)
		if got != tc.want || term != tc.term {
			t.Errorf("FlaggedTerm(%q) = %q, %v; want %q, %v", tc.text, term, got, tc.term, tc.want)
		}
	}
}
