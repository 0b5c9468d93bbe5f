// Package plan turns raw conversational text into a structured query intent
// using deterministic pattern matching over a controlled vocabulary.
package plan

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

// Service is the query planner.
type Service struct {
	logger *zap.Logger
}

// New creates a planner.
func New(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

var (
	reBetween = regexp.MustCompile(
		`\bbetween\s+(\$)?([\d,]+(?:\.\d+)?)\s+and\s+\$?([\d,]+(?:\.\d+)?)` +
			`(?:\s*(dollars?|usd|bucks|hours?|lbs?|pounds?|kg|kilograms|kilos|inch(?:es)?|gb|tb))?`)
	reComparator = regexp.MustCompile(
		`\b(less than|more than|cheaper than|at most|at least|up to|under|below|over|above)` +
			`\s+(\$)?([\d,]+(?:\.\d+)?)` +
			`(?:\s*(dollars?|usd|bucks|hours?|lbs?|pounds?|kg|kilograms|kilos|inch(?:es)?|gb|tb))?`)
	reBareCurrency = regexp.MustCompile(`\$([\d,]+(?:\.\d+)?)`)
	reBatteryMin   = regexp.MustCompile(`\b(\d+)\s*\+?\s*hours?\b`)
	reEntitySplit  = regexp.MustCompile(`\s+(?:and|with|to|against)\s+|\s*,\s*`)
)

// Plan interprets one query turn. prior, when set, is the previous turn's
// intent used for carry-forward on elliptical follow-ups.
func (s *Service) Plan(ctx context.Context, raw string, prior *query.Intent) (query.Intent, error) {
	text := strings.ToLower(strings.TrimSpace(raw))

	filters, dropped := parseNumeric(text)
	entities := detectCompare(text)
	mode := query.Search
	if len(entities) >= 2 {
		mode = query.Compare
	}
	keywords, categories, brands := classify(text)

	if prior != nil && hasElision(text) {
		if len(categories) == 0 {
			categories = prior.Categories()
		}
		if len(brands) == 0 {
			brands = prior.Brands()
		}
		filters = inheritFilters(filters, prior.Numeric())
		if len(keywords) == 0 {
			keywords = prior.Keywords()
		}
	}

	if dropped {
		s.logger.Debug("dropped numeric constraint with unresolvable unit",
			zap.String("query", raw))
	}

	return query.New(raw, keywords, filters, categories, brands, entities, mode, dropped)
}

// Keywords returns the normalized keyword tokens of raw, the same
// normalization the full planner applies. Used by the suggestion path.
func (s *Service) Keywords(ctx context.Context, raw string) []string {
	kw, _, _ := classify(strings.ToLower(strings.TrimSpace(raw)))
	return kw
}

// parseNumeric extracts unit-carrying numeric constraints. A number whose
// unit cannot be resolved is dropped and reported so the caller can flag
// low confidence.
func parseNumeric(text string) ([]query.NumericFilter, bool) {
	var filters []query.NumericFilter
	dropped := false
	work := text

	if m := reBetween.FindStringSubmatch(work); m != nil {
		field, unit, scale, ok := resolveUnit(m[1] == "$", m[4])
		if ok {
			addFilter(&filters, field, query.GTE, parseNum(m[2])*scale, unit)
			addFilter(&filters, field, query.LTE, parseNum(m[3])*scale, unit)
		} else {
			dropped = true
		}
		work = strings.Replace(work, m[0], " ", 1)
	}

	for _, m := range reComparator.FindAllStringSubmatch(work, -1) {
		field, unit, scale, ok := resolveUnit(m[2] == "$", m[4])
		if !ok {
			dropped = true
			continue
		}
		addFilter(&filters, field, opFor(m[1]), parseNum(m[3])*scale, unit)
	}
	work = reComparator.ReplaceAllString(work, " ")

	// A bare "$1500" reads as a budget cap.
	for _, m := range reBareCurrency.FindAllStringSubmatch(work, -1) {
		addFilter(&filters, "price", query.LTE, parseNum(m[1]), "usd")
	}
	work = reBareCurrency.ReplaceAllString(work, " ")

	// "12 hours battery" without a comparator reads as a minimum.
	if strings.Contains(work, "battery") {
		if m := reBatteryMin.FindStringSubmatch(work); m != nil {
			addFilter(&filters, "battery_hours", query.GTE, parseNum(m[1]), "hours")
		}
	}

	return filters, dropped
}

func resolveUnit(hasCurrencySign bool, unitWord string) (field, unit string, scale float64, ok bool) {
	if hasCurrencySign {
		return "price", "usd", 1, true
	}
	switch unitWord {
	case "dollar", "dollars", "usd", "bucks":
		return "price", "usd", 1, true
	case "hour", "hours":
		return "battery_hours", "hours", 1, true
	case "lb", "lbs", "pound", "pounds":
		return "weight_lbs", "lbs", 1, true
	case "kg", "kilograms", "kilos":
		return "weight_kg", "kg", 1, true
	case "inch", "inches":
		return "screen_inches", "inches", 1, true
	case "gb":
		return "storage_gb", "gb", 1, true
	case "tb":
		return "storage_gb", "gb", 1000, true
	default:
		return "", "", 0, false
	}
}

func opFor(comparator string) query.Op {
	switch comparator {
	case "over", "above", "more than", "at least":
		return query.GTE
	default:
		return query.LTE
	}
}

// addFilter keeps the first constraint per field.
func addFilter(filters *[]query.NumericFilter, field string, op query.Op, value float64, unit string) {
	for _, f := range *filters {
		if f.Field() == field && f.Operator() == op {
			return
		}
	}
	f, err := query.NewNumericFilter(field, op, value, unit)
	if err != nil {
		return
	}
	*filters = append(*filters, f)
}

func parseNum(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v
}

// classify splits text into keywords and recognized category/brand tags.
// Category and brand tokens stay in the keyword list: they carry semantic
// weight for the embedding as well.
func classify(text string) (keywords, categories, brands []string) {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,!?;:()[]\"'")
		tok = strings.TrimPrefix(tok, "$")
		if tok == "" || stopwords[tok] || comparatorTokens[tok] || unitTokens[tok] || isNumber(tok) {
			continue
		}
		if cat, ok := categoryVocab[tok]; ok {
			categories = appendUnique(categories, cat)
		}
		if brandVocab[tok] {
			brands = appendUnique(brands, tok)
		}
		keywords = appendUnique(keywords, tok)
	}
	return keywords, categories, brands
}

// detectCompare extracts comparison entities around vs/versus connectives or
// after a leading "compare". Fewer than two clean entities means no
// comparison.
func detectCompare(text string) []string {
	for _, sep := range []string{" versus ", " vs. ", " vs "} {
		if strings.Contains(text, sep) {
			return cleanEntities(strings.Split(text, sep))
		}
	}
	if rest, ok := strings.CutPrefix(text, "compare "); ok {
		return cleanEntities(reEntitySplit.Split(rest, -1))
	}
	return nil
}

func cleanEntities(parts []string) []string {
	entities := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimPrefix(strings.TrimSpace(part), "compare ")
		var kept []string
		for _, tok := range strings.Fields(part) {
			tok = strings.Trim(tok, ".,!?;:()[]\"'")
			if tok == "" || stopwords[tok] || comparatorTokens[tok] || unitTokens[tok] || isNumber(strings.TrimPrefix(tok, "$")) {
				continue
			}
			kept = append(kept, tok)
		}
		if len(kept) > 0 {
			entities = append(entities, strings.Join(kept, " "))
		}
	}
	if len(entities) < 2 {
		return nil
	}
	return entities
}

func hasElision(text string) bool {
	for _, tok := range strings.Fields(text) {
		if elisionMarkers[strings.Trim(tok, ".,!?")] {
			return true
		}
	}
	return false
}

// inheritFilters keeps every new filter and fills in prior filters whose
// field the new text did not constrain.
func inheritFilters(current, prior []query.NumericFilter) []query.NumericFilter {
	for _, pf := range prior {
		seen := false
		for _, cf := range current {
			if cf.Field() == pf.Field() {
				seen = true
				break
			}
		}
		if !seen {
			current = append(current, pf)
		}
	}
	return current
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

func isNumber(tok string) bool {
	if tok == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	return err == nil
}
