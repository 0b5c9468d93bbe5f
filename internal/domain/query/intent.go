// Package query defines the structured interpretation of a natural-language
// product query.
package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/shopdex/internal/domain"
)

// MaxRawLength is the maximum accepted query length.
const MaxRawLength = 1024

// Mode is the requested pipeline behavior.
type Mode string

const (
	// Search is a plain ranked product search.
	Search Mode = "search"
	// Compare groups results by named comparison entities.
	Compare Mode = "compare"
	// Suggest is the lightweight keyword-completion path.
	Suggest Mode = "suggest"
)

// IsValid checks the mode against supported values.
func (m Mode) IsValid() bool {
	return m == Search || m == Compare || m == Suggest
}

// Op is a numeric filter comparison operator.
type Op string

const (
	// LTE keeps values less than or equal to the bound.
	LTE Op = "lte"
	// GTE keeps values greater than or equal to the bound.
	GTE Op = "gte"
)

// NumericFilter is a unit-carrying numeric constraint, e.g. price <= 2000 USD.
type NumericFilter struct {
	field string
	op    Op
	value float64
	unit  string
}

// NewNumericFilter validates and creates a numeric filter.
func NewNumericFilter(field string, op Op, value float64, unit string) (NumericFilter, error) {
	if field == "" {
		return NumericFilter{}, fmt.Errorf("filter field is required")
	}
	if op != LTE && op != GTE {
		return NumericFilter{}, fmt.Errorf("invalid operator %q for field %q", op, field)
	}
	if unit == "" {
		return NumericFilter{}, fmt.Errorf("filter on %q has no unit", field)
	}
	return NumericFilter{field: field, op: op, value: value, unit: unit}, nil
}

// Field returns the constrained product field.
func (f NumericFilter) Field() string { return f.field }

// Operator returns the comparison operator.
func (f NumericFilter) Operator() Op { return f.op }

// Value returns the bound.
func (f NumericFilter) Value() float64 { return f.value }

// Unit returns the unit the bound is expressed in.
func (f NumericFilter) Unit() string { return f.unit }

// Matches reports whether v satisfies the constraint.
func (f NumericFilter) Matches(v float64) bool {
	if f.op == LTE {
		return v <= f.value
	}
	return v >= f.value
}

// String renders the filter for notes and logs, e.g. "price <= 2000 usd".
func (f NumericFilter) String() string {
	sign := "<="
	if f.op == GTE {
		sign = ">="
	}
	return fmt.Sprintf("%s %s %g %s", f.field, sign, f.value, f.unit)
}

// Intent is a validated, structured interpretation of one query turn.
type Intent struct {
	raw           string
	keywords      []string
	numeric       []NumericFilter
	categories    []string
	brands        []string
	compare       []string
	mode          Mode
	lowConfidence bool
}

// New validates and creates an intent.
// An intent with no keywords and no filters is rejected: there is nothing
// to retrieve by.
func New(
	raw string,
	keywords []string,
	numeric []NumericFilter,
	categories, brands, compare []string,
	mode Mode,
	lowConfidence bool,
) (Intent, error) {
	if strings.TrimSpace(raw) == "" {
		return Intent{}, fmt.Errorf("%w: empty query text", domain.ErrMalformedQuery)
	}
	if len(raw) > MaxRawLength {
		return Intent{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrMalformedQuery, MaxRawLength)
	}
	if mode == "" {
		mode = Search
	}
	if !mode.IsValid() {
		return Intent{}, fmt.Errorf("invalid mode %q", mode)
	}
	if len(keywords) == 0 && len(numeric) == 0 && len(categories) == 0 && len(brands) == 0 {
		return Intent{}, fmt.Errorf("%w: no keywords or filters recognized", domain.ErrMalformedQuery)
	}
	if mode == Compare && len(compare) < 2 {
		return Intent{}, fmt.Errorf("compare mode requires at least 2 entities, got %d", len(compare))
	}
	return Intent{
		raw:           raw,
		keywords:      keywords,
		numeric:       numeric,
		categories:    categories,
		brands:        brands,
		compare:       compare,
		mode:          mode,
		lowConfidence: lowConfidence,
	}, nil
}

// Raw returns the original query text.
func (i *Intent) Raw() string { return i.raw }

// Keywords returns the normalized keyword list.
func (i *Intent) Keywords() []string { return i.keywords }

// KeywordText joins keywords into the text handed to the embedder.
func (i *Intent) KeywordText() string { return strings.Join(i.keywords, " ") }

// Numeric returns the numeric filters.
func (i *Intent) Numeric() []NumericFilter { return i.numeric }

// Categories returns the use-case/category tags.
func (i *Intent) Categories() []string { return i.categories }

// Brands returns the requested brand filters.
func (i *Intent) Brands() []string { return i.brands }

// CompareEntities returns the named comparison targets in requested order.
func (i *Intent) CompareEntities() []string { return i.compare }

// Mode returns the pipeline mode.
func (i *Intent) Mode() Mode { return i.mode }

// LowConfidence reports whether a constraint was dropped during planning.
func (i *Intent) LowConfidence() bool { return i.lowConfidence }

// FilterCount returns the number of hard filters. Brand alternatives form a
// single filter: any listed brand satisfies it.
func (i *Intent) FilterCount() int {
	n := len(i.numeric)
	if len(i.brands) > 0 {
		n++
	}
	return n
}

// PriceFilter returns the price constraint, if any.
func (i *Intent) PriceFilter() (NumericFilter, bool) {
	for _, f := range i.numeric {
		if f.field == "price" {
			return f, true
		}
	}
	return NumericFilter{}, false
}

// WithoutBrands returns a copy with brand filters removed.
func (i *Intent) WithoutBrands() Intent {
	c := *i
	c.brands = nil
	return c
}

// WithoutPrice returns a copy with the price filter removed.
func (i *Intent) WithoutPrice() Intent {
	c := *i
	c.numeric = dropField(i.numeric, "price")
	return c
}

// WithoutSpecs returns a copy with non-price numeric filters removed.
func (i *Intent) WithoutSpecs() Intent {
	c := *i
	kept := make([]NumericFilter, 0, len(i.numeric))
	for _, f := range i.numeric {
		if f.field == "price" {
			kept = append(kept, f)
		}
	}
	c.numeric = kept
	return c
}

// ForEntity returns a copy scoped to a single comparison entity: the entity
// name replaces the keywords and the comparison list, mode drops to Search.
func (i *Intent) ForEntity(entity string) Intent {
	c := *i
	c.keywords = strings.Fields(strings.ToLower(entity))
	c.compare = nil
	c.mode = Search
	return c
}

func dropField(filters []NumericFilter, field string) []NumericFilter {
	kept := make([]NumericFilter, 0, len(filters))
	for _, f := range filters {
		if f.field != field {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
