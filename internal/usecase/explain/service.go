// Package explain builds the conversational answer for a ranked result set.
// Generation failures degrade to a templated narrative; the stage never
// fails a search.
package explain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/query"
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
	"github.com/kailas-cloud/shopdex/internal/usecase/guard"
)

// DefaultTopN is how many leading results get a one-line explanation.
const DefaultTopN = 5

const systemPrompt = "You are a shopping assistant for an electronics catalog. " +
	"Summarize how the listed results fit the customer's request in two or " +
	"three sentences. Be concrete and honest; never invent products or specs."

// Narrative is the explanation output: an overall summary plus one-liners
// for the leading results, keyed by product id.
type Narrative struct {
	Summary    string
	PerProduct map[string]string
	Degraded   bool
}

// Service is the response generator.
type Service struct {
	gen    Generator
	topN   int
	logger *zap.Logger
}

// New creates an explanation service. topN <= 0 falls back to DefaultTopN.
func New(gen Generator, topN int, logger *zap.Logger) *Service {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Service{gen: gen, topN: topN, logger: logger}
}

// Explain produces the narrative for a ranked result. The per-product lines
// are always templated; the summary comes from the generator and falls back
// to a template on any error or empty completion.
func (s *Service) Explain(ctx context.Context, ranked *domrank.Result, intent *query.Intent) Narrative {
	top := ranked.Top(s.topN)

	perProduct := make(map[string]string, len(top))
	for i := range top {
		prod := top[i].Product()
		perProduct[prod.ID()] = oneLiner(&top[i], intent)
	}

	n := Narrative{PerProduct: perProduct}

	if ranked.Len() == 0 {
		n.Summary = templateSummary(ranked, intent)
		return n
	}

	summary, err := s.gen.Generate(ctx, systemPrompt, buildPrompt(top, intent))
	if err != nil || strings.TrimSpace(summary) == "" {
		s.logger.Warn("generation failed, using templated narrative", zap.Error(err))
		n.Summary = templateSummary(ranked, intent)
		n.Degraded = true
		return n
	}
	if term, flagged := guard.FlaggedTerm(summary); flagged {
		s.logger.Warn("generated summary contains prohibited wording",
			zap.String("term", term))
		n.Summary = templateSummary(ranked, intent)
		n.Degraded = true
		return n
	}

	n.Summary = strings.TrimSpace(summary)
	return n
}

func buildPrompt(top []domrank.Entry, intent *query.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer request: %s\n", intent.Raw())

	if filters := intent.Numeric(); len(filters) > 0 {
		b.WriteString("Constraints:")
		for _, f := range filters {
			fmt.Fprintf(&b, " %s;", f.String())
		}
		b.WriteString("\n")
	}
	if brands := intent.Brands(); len(brands) > 0 {
		fmt.Fprintf(&b, "Preferred brands: %s\n", strings.Join(brands, ", "))
	}

	b.WriteString("Results:\n")
	for i := range top {
		e := &top[i]
		prod := e.Product()
		fmt.Fprintf(&b, "%d. %s — $%.2f, %s, rated %.1f/5", i+1, prod.Name(), prod.Price(), prod.Brand(), prod.Rating())
		if tags := e.Tags(); len(tags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(tags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// templateSummary is the deterministic fallback narrative.
func templateSummary(ranked *domrank.Result, intent *query.Intent) string {
	if ranked.Len() == 0 {
		return "No products matched your search. Try removing a constraint or rephrasing the query."
	}

	top := ranked.Entries()[0]
	prod := top.Product()
	summary := fmt.Sprintf("Found %d options for %q. Top pick: %s at $%.2f",
		ranked.Len(), intent.Raw(), prod.Name(), prod.Price())
	if prod.Rating() > 0 {
		summary += fmt.Sprintf(", rated %.1f/5", prod.Rating())
	}
	return summary + "."
}

// oneLiner renders the templated per-result explanation from the match
// signals available after ranking.
func oneLiner(e *domrank.Entry, intent *query.Intent) string {
	prod := e.Product()
	var parts []string

	if e.RawSimilarity() >= 0.8 {
		parts = append(parts, "close match to your query")
	}
	if pf, ok := intent.PriceFilter(); ok && pf.Matches(prod.Price()) {
		parts = append(parts, fmt.Sprintf("within your $%g budget", pf.Value()))
	}
	parts = append(parts, e.Tags()...)
	if prod.Rating() > 0 {
		parts = append(parts, fmt.Sprintf("rated %.1f/5", prod.Rating()))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%s from %s at $%.2f", prod.Name(), prod.Brand(), prod.Price())
	}
	return strings.Join(parts, "; ")
}
