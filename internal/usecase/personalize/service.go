// Package personalize scores retrieval candidates against the user profile.
// It never fails: an absent profile scores every candidate at zero.
package personalize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/profile"
	"github.com/kailas-cloud/shopdex/internal/domain/rank"
)

// Config holds the component weights of the personalization score.
// The config layer validates that they sum to 1.
type Config struct {
	CategoryWeight float64
	BrandWeight    float64
	PriceWeight    float64
	SessionWeight  float64
}

// Service is the personalization agent.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a personalization service.
func New(cfg Config, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// Personalize scores every candidate in set order and builds the profile
// delta for userID. prof nil means the neutral profile. The delta is
// returned, not applied: the orchestrator hands it to the write-back sink
// once the response is out.
func (s *Service) Personalize(
	ctx context.Context, set *candidate.Set, prof *profile.Profile, userID string,
) ([]rank.Scored, profile.Delta) {
	neutral := profile.Neutral()
	if prof == nil {
		prof = &neutral
	}

	cands := set.All()
	scored := make([]rank.Scored, 0, len(cands))
	for i := range cands {
		score, tags := s.score(prof, &cands[i])
		sc, err := rank.NewScored(cands[i], score, tags)
		if err != nil {
			s.logger.Error("invalid personalization score", zap.Error(err))
			continue
		}
		scored = append(scored, sc)
	}

	return scored, buildDelta(userID, cands)
}

func (s *Service) score(prof *profile.Profile, c *candidate.Candidate) (float64, []string) {
	prod := c.Product()

	var score float64
	var tags []string

	if affinity := prof.Affinity(prod.Category()); affinity > 0 {
		score += s.cfg.CategoryWeight * affinity
		tags = append(tags, fmt.Sprintf("matches %s affinity", strings.ToLower(prod.Category())))
	}
	if prof.PrefersBrand(prod.Brand()) {
		score += s.cfg.BrandWeight
		tags = append(tags, "preferred brand")
	}
	if band := prof.Band(); !band.IsZero() && band.Contains(prod.Price()) {
		score += s.cfg.PriceWeight
		tags = append(tags, "fits your price range")
	}
	if prof.ViewedThisSession(prod.Category()) {
		score += s.cfg.SessionWeight
		tags = append(tags, "viewed similar this session")
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, tags
}

// buildDelta nudges affinity toward every retrieved category and marks the
// categories as viewed this session.
func buildDelta(userID string, cands []candidate.Candidate) profile.Delta {
	if userID == "" || len(cands) == 0 {
		return profile.Delta{}
	}

	nudges := make(map[string]float64)
	var viewed []string
	for i := range cands {
		cat := strings.ToLower(cands[i].Product().Category())
		if cat == "" {
			continue
		}
		if _, seen := nudges[cat]; !seen {
			nudges[cat] = profile.AffinityNudge
			viewed = append(viewed, cat)
		}
	}
	if len(nudges) == 0 {
		return profile.Delta{}
	}
	return profile.Delta{UserID: userID, Nudges: nudges, Viewed: viewed}
}
