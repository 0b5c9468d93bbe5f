package profile

import "testing"

func TestNew_ValidatesAffinities(t *testing.T) {
	_, err := New("u1", map[string]float64{"laptops": 1.2}, nil, PriceBand{}, nil)
	if err == nil {
		t.Fatal("expected error for affinity above 1")
	}
}

func TestNeutral(t *testing.T) {
	p := Neutral()
	if !p.IsNeutral() {
		t.Fatal("Neutral() must report neutral")
	}
	if p.Affinity("laptops") != 0 {
		t.Error("neutral profile must have zero affinity everywhere")
	}
	if p.PrefersBrand("apple") {
		t.Error("neutral profile must not prefer any brand")
	}
}

func TestProfile_Lookups(t *testing.T) {
	p, err := New("u1",
		map[string]float64{"laptops": 0.8},
		[]string{"Apple"},
		PriceBand{Min: 500, Max: 2000},
		[]string{"monitors"},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if p.Affinity("Laptops") != 0.8 {
		t.Error("affinity lookup should be case-insensitive")
	}
	if !p.PrefersBrand("apple") {
		t.Error("brand preference should be case-insensitive")
	}
	if !p.Band().Contains(2000) || p.Band().Contains(2001) {
		t.Error("band bounds should be inclusive")
	}
	if !p.ViewedThisSession("Monitors") {
		t.Error("session view lookup should be case-insensitive")
	}
}

func TestApply_ClampsAndDedupes(t *testing.T) {
	p, _ := New("u1", map[string]float64{"laptops": 0.98}, nil, PriceBand{}, []string{"laptops"})

	next := p.Apply(Delta{
		UserID: "u1",
		Nudges: map[string]float64{"laptops": AffinityNudge, "monitors": AffinityNudge},
		Viewed: []string{"laptops", "monitors"},
	})

	if next.Affinity("laptops") != 1 {
		t.Errorf("affinity must clamp to 1, got %g", next.Affinity("laptops"))
	}
	if next.Affinity("monitors") != AffinityNudge {
		t.Errorf("new category should start at the nudge, got %g", next.Affinity("monitors"))
	}
	if got := len(next.SessionViews()); got != 2 {
		t.Errorf("session views should dedupe, got %d", got)
	}

	// the source profile is untouched
	if p.Affinity("laptops") != 0.98 {
		t.Error("Apply must not mutate the receiver")
	}
}
