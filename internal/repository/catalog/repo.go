// Package catalog implements product storage and vector retrieval over
// RediSearch hash documents.
package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/db"
	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/candidate"
	"github.com/kailas-cloud/shopdex/internal/domain/product"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
)

// IndexName is the FT index over catalog products.
const IndexName = domain.KeyPrefix + "products:idx"

// KeyPrefix prefixes every product document key.
const KeyPrefix = domain.KeyPrefix + "product:"

// Hash field names shared by the index schema and document writes.
const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldCategory    = "category"
	fieldBrand       = "brand"
	fieldRating      = "rating"
	fieldAttrs       = "attrs"
	fieldVector      = "vector"
)

type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo reads and writes catalog products.
type Repo struct {
	store  store
	logger *zap.Logger
}

// New creates a catalog repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

// EnsureIndex creates the product index if it does not exist yet.
// It reports whether the index was created by this call.
func (r *Repo) EnsureIndex(ctx context.Context, dim, m, efConstruct int) (bool, error) {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", IndexName, err)
	}
	if exists {
		return false, nil
	}

	def, err := db.NewIndex(IndexName).
		Prefix(KeyPrefix).
		Tag(fieldCategory).
		Tag(fieldBrand).
		Numeric(fieldPrice).
		Numeric(fieldRating).
		Text(fieldName).
		Text(fieldDescription).
		VectorHNSW(fieldVector, dim, db.DistanceCosine, m, efConstruct).
		Build()
	if err != nil {
		return false, fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		// Lost a create race: another instance got there first.
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", IndexName, err)
	}
	return true, nil
}

// Search runs a filtered KNN query and returns candidates in similarity
// order. Filter satisfaction is attributed by the caller, so candidates
// come back with no matched filters.
func (r *Repo) Search(ctx context.Context, vector []float32, f db.Filter, k int) ([]candidate.Candidate, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: IndexName,
		Filter:    f,
		Vector:    vector,
		K:         k,
		ReturnFields: []string{
			fieldName, fieldDescription, fieldPrice,
			fieldCategory, fieldBrand, fieldRating, fieldAttrs,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]candidate.Candidate, 0, len(res.Entries))
	for i := range res.Entries {
		e := &res.Entries[i]
		prod, err := parseProduct(e.Key, e.Fields)
		if err != nil {
			r.logger.Warn("skipping malformed product document",
				zap.String("key", e.Key), zap.Error(err))
			continue
		}
		out = append(out, candidate.New(prod, e.Score, nil))
	}
	return out, nil
}

// SearchByIntent pushes the intent's indexable constraints down to the
// index and runs the KNN query.
func (r *Repo) SearchByIntent(ctx context.Context, vector []float32, i *query.Intent, k int) ([]candidate.Candidate, error) {
	return r.Search(ctx, vector, PushdownFilter(i), k)
}

// Doc pairs a product with its description embedding for ingestion.
type Doc struct {
	Product product.Product
	Vector  []float32
}

// Upsert writes product documents in a single pipelined call.
func (r *Repo) Upsert(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(docs))
	for i := range docs {
		p := &docs[i].Product
		fields := map[string]string{
			fieldName:        p.Name(),
			fieldDescription: p.Description(),
			fieldPrice:       strconv.FormatFloat(p.Price(), 'f', -1, 64),
			fieldCategory:    p.Category(),
			fieldBrand:       p.Brand(),
			fieldRating:      strconv.FormatFloat(p.Rating(), 'f', -1, 64),
			fieldVector:      string(vectorToBlob(docs[i].Vector)),
		}
		if attrs := p.Attributes(); len(attrs) > 0 {
			raw, err := json.Marshal(attrs)
			if err != nil {
				return fmt.Errorf("marshal attributes for %q: %w", p.ID(), err)
			}
			fields[fieldAttrs] = string(raw)
		}
		items = append(items, db.HashSetItem{Key: KeyPrefix + p.ID(), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d products: %w", len(items), err)
	}
	return nil
}

// PushdownFilter maps intent constraints onto indexed fields. Category and
// brand become tag clauses, the price bound becomes a numeric range.
// Constraints on non-indexed attribute fields stay with the caller.
func PushdownFilter(i *query.Intent) db.Filter {
	var f db.Filter
	if cats := i.Categories(); len(cats) > 0 {
		f.Tags = append(f.Tags, db.TagClause{Field: fieldCategory, AnyOf: lowerAll(cats)})
	}
	if brands := i.Brands(); len(brands) > 0 {
		f.Tags = append(f.Tags, db.TagClause{Field: fieldBrand, AnyOf: lowerAll(brands)})
	}
	if pf, ok := i.PriceFilter(); ok {
		rc := db.RangeClause{Field: fieldPrice}
		if pf.Operator() == query.LTE {
			rc.Max, rc.HasMax = pf.Value(), true
		} else {
			rc.Min, rc.HasMin = pf.Value(), true
		}
		f.Ranges = append(f.Ranges, rc)
	}
	return f
}

// EmbedText renders the text a product is embedded under. Kept in one place
// so ingestion and any future re-embedding agree byte for byte.
func EmbedText(p *product.Product) string {
	return p.Name() + ". " + p.Description()
}

func parseProduct(key string, fields map[string]string) (product.Product, error) {
	id := strings.TrimPrefix(key, KeyPrefix)
	if id == "" || id == key {
		return product.Product{}, fmt.Errorf("unexpected document key %q", key)
	}
	name := fields[fieldName]
	if name == "" {
		return product.Product{}, fmt.Errorf("document %q has no name", key)
	}
	price, err := strconv.ParseFloat(fields[fieldPrice], 64)
	if err != nil {
		return product.Product{}, fmt.Errorf("parse price for %q: %w", key, err)
	}

	var rating float64
	if raw := fields[fieldRating]; raw != "" {
		rating, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return product.Product{}, fmt.Errorf("parse rating for %q: %w", key, err)
		}
	}

	var attrs map[string]string
	if raw := fields[fieldAttrs]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return product.Product{}, fmt.Errorf("parse attributes for %q: %w", key, err)
		}
	}

	return product.Reconstruct(
		id, name, fields[fieldDescription],
		price, fields[fieldCategory], fields[fieldBrand],
		rating, attrs,
	), nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func vectorToBlob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
