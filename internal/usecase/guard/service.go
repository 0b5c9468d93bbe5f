// Package guard applies merchandising policy to search output: listings
// with prohibited wording or an implausible price never reach the customer,
// and generated response text is screened the same way.
package guard

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/rank"
)

// bannedTerms flag listings that may not be sold through the catalog.
var bannedTerms = []string{"counterfeit", "fake", "replica", "knockoff", "bootleg"}

// FlaggedTerm reports the first prohibited term found in text.
func FlaggedTerm(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// Config bounds the price-sanity check. A listing priced outside
// [MinPrice, MaxPrice] is treated as bad catalog data.
type Config struct {
	MinPrice float64
	MaxPrice float64
}

// Service drops ranked candidates that violate merchandising policy.
type Service struct {
	cfg      Config
	filtered *prometheus.CounterVec
	logger   *zap.Logger
}

// New creates a guard service. filtered counts dropped candidates by reason.
func New(cfg Config, filtered *prometheus.CounterVec, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, filtered: filtered, logger: logger}
}

// FilterScored returns the scored candidates that pass every policy check,
// preserving order.
func (s *Service) FilterScored(scored []rank.Scored) []rank.Scored {
	kept := make([]rank.Scored, 0, len(scored))
	for i := range scored {
		cand := scored[i].Candidate()
		if reason, detail, ok := s.violation(cand.Product()); ok {
			s.filtered.WithLabelValues(reason).Inc()
			s.logger.Warn("dropped listing violating merchandising policy",
				zap.String("product_id", cand.ID()),
				zap.String("reason", detail))
			continue
		}
		kept = append(kept, scored[i])
	}
	return kept
}

func (s *Service) violation(prod product.Product) (reason, detail string, ok bool) {
	if term, flagged := FlaggedTerm(prod.Name()); flagged {
		return "content", fmt.Sprintf("name contains %q", term), true
	}
	if term, flagged := FlaggedTerm(prod.Description()); flagged {
		return "content", fmt.Sprintf("description contains %q", term), true
	}
	if prod.Price() < s.cfg.MinPrice || prod.Price() > s.cfg.MaxPrice {
		return "price", fmt.Sprintf("price $%.2f outside [$%g, $%g]",
			prod.Price(), s.cfg.MinPrice, s.cfg.MaxPrice), true
	}
	return "", "", false
}
