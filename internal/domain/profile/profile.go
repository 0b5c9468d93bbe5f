// Package profile defines the user personalization profile and the delta
// written back after each completed search.
package profile

import (
	"fmt"
	"strings"
)

// AffinityNudge is the per-search increment applied to a category affinity.
const AffinityNudge = 0.05

// PriceBand is the user's historical price sensitivity range.
type PriceBand struct {
	Min float64
	Max float64
}

// Contains reports whether price falls inside the band.
func (b PriceBand) Contains(price float64) bool {
	return price >= b.Min && price <= b.Max
}

// IsZero reports an unset band.
func (b PriceBand) IsZero() bool { return b.Min == 0 && b.Max == 0 }

// Profile holds everything the personalization stage reads for one user.
// Read-mostly during a request; updated via Delta after the response.
type Profile struct {
	userID       string
	affinities   map[string]float64
	brands       []string
	priceBand    PriceBand
	sessionViews []string
}

// New validates and creates a profile.
func New(
	userID string,
	affinities map[string]float64,
	brands []string,
	priceBand PriceBand,
	sessionViews []string,
) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("user id is required")
	}
	for cat, w := range affinities {
		if w < 0 || w > 1 {
			return Profile{}, fmt.Errorf("affinity for %q out of [0,1]: %g", cat, w)
		}
	}
	if priceBand.Min < 0 || (priceBand.Max != 0 && priceBand.Max < priceBand.Min) {
		return Profile{}, fmt.Errorf("invalid price band [%g, %g]", priceBand.Min, priceBand.Max)
	}
	return Profile{
		userID:       userID,
		affinities:   affinities,
		brands:       brands,
		priceBand:    priceBand,
		sessionViews: sessionViews,
	}, nil
}

// Neutral returns the zero profile used when no profile exists.
// Personalization over it scores 0 for every candidate.
func Neutral() Profile {
	return Profile{userID: ""}
}

// UserID returns the profile owner, empty for the neutral profile.
func (p *Profile) UserID() string { return p.userID }

// IsNeutral reports whether this is the zero profile.
func (p *Profile) IsNeutral() bool { return p.userID == "" }

// Affinity returns the weight in [0,1] for a category, 0 when unknown.
func (p *Profile) Affinity(category string) float64 {
	return p.affinities[strings.ToLower(category)]
}

// Affinities returns the full category-affinity map.
func (p *Profile) Affinities() map[string]float64 { return p.affinities }

// PrefersBrand reports a declared brand preference (case-insensitive).
func (p *Profile) PrefersBrand(brand string) bool {
	for _, b := range p.brands {
		if strings.EqualFold(b, brand) {
			return true
		}
	}
	return false
}

// Brands returns the declared preferred brands.
func (p *Profile) Brands() []string { return p.brands }

// Band returns the price sensitivity band.
func (p *Profile) Band() PriceBand { return p.priceBand }

// ViewedThisSession reports whether the category was viewed this session.
func (p *Profile) ViewedThisSession(category string) bool {
	for _, v := range p.sessionViews {
		if strings.EqualFold(v, category) {
			return true
		}
	}
	return false
}

// SessionViews returns the categories viewed this session.
func (p *Profile) SessionViews() []string { return p.sessionViews }

// Delta is the write-back emitted by personalization: affinity nudges plus
// session view appends. Applied by the profile store, fire-and-forget
// relative to the response path.
type Delta struct {
	UserID string
	Nudges map[string]float64
	Viewed []string
}

// Apply folds the delta into the profile, clamping affinities to [0,1].
func (p Profile) Apply(d Delta) Profile {
	if p.affinities == nil {
		p.affinities = make(map[string]float64, len(d.Nudges))
	} else {
		merged := make(map[string]float64, len(p.affinities)+len(d.Nudges))
		for k, v := range p.affinities {
			merged[k] = v
		}
		p.affinities = merged
	}
	for cat, n := range d.Nudges {
		w := p.affinities[cat] + n
		if w > 1 {
			w = 1
		}
		if w < 0 {
			w = 0
		}
		p.affinities[cat] = w
	}
	for _, cat := range d.Viewed {
		if !p.ViewedThisSession(cat) {
			p.sessionViews = append(p.sessionViews, cat)
		}
	}
	if p.userID == "" {
		p.userID = d.UserID
	}
	return p
}
