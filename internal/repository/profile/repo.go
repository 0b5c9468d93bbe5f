// Package profile persists user personalization profiles as JSON documents.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/shopdex/internal/db"
	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/profile"
)

const keyPrefix = domain.KeyPrefix + "profile:"

type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONSet(ctx context.Context, key, path string, data []byte) error
}

// Repo reads and writes profiles.
type Repo struct {
	store store
}

// New creates a profile repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

type document struct {
	UserID       string             `json:"user_id"`
	Affinities   map[string]float64 `json:"category_affinity,omitempty"`
	Brands       []string           `json:"preferred_brands,omitempty"`
	PriceMin     float64            `json:"price_band_min,omitempty"`
	PriceMax     float64            `json:"price_band_max,omitempty"`
	SessionViews []string           `json:"session_views,omitempty"`
}

// Get loads a user's profile. Returns domain.ErrProfileNotFound when the
// user has no stored profile.
func (r *Repo) Get(ctx context.Context, userID string) (profile.Profile, error) {
	if userID == "" {
		return profile.Profile{}, fmt.Errorf("user id is required")
	}

	raw, err := r.store.JSONGet(ctx, keyPrefix+userID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return profile.Profile{}, fmt.Errorf("profile for %q: %w", userID, domain.ErrProfileNotFound)
		}
		return profile.Profile{}, fmt.Errorf("load profile for %q: %w", userID, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return profile.Profile{}, fmt.Errorf("decode profile for %q: %w", userID, err)
	}

	p, err := profile.New(userID, doc.Affinities, doc.Brands,
		profile.PriceBand{Min: doc.PriceMin, Max: doc.PriceMax}, doc.SessionViews)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("stored profile for %q is invalid: %w", userID, err)
	}
	return p, nil
}

// Put stores a profile, replacing any previous document.
func (r *Repo) Put(ctx context.Context, p profile.Profile) error {
	if p.IsNeutral() {
		return fmt.Errorf("cannot store the neutral profile")
	}

	band := p.Band()
	doc := document{
		UserID:       p.UserID(),
		Affinities:   p.Affinities(),
		Brands:       p.Brands(),
		PriceMin:     band.Min,
		PriceMax:     band.Max,
		SessionViews: p.SessionViews(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profile for %q: %w", p.UserID(), err)
	}
	if err := r.store.JSONSet(ctx, keyPrefix+p.UserID(), "$", raw); err != nil {
		return fmt.Errorf("store profile for %q: %w", p.UserID(), err)
	}
	return nil
}

// ApplyDelta folds a delta into the stored profile, creating the profile on
// first write. Read-modify-write without a lock: per-user deltas are applied
// by a single writer goroutine.
func (r *Repo) ApplyDelta(ctx context.Context, d profile.Delta) error {
	if d.UserID == "" {
		return fmt.Errorf("delta has no user id")
	}

	current, err := r.Get(ctx, d.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileNotFound) {
			return err
		}
		current = profile.Neutral()
	}
	return r.Put(ctx, current.Apply(d))
}
