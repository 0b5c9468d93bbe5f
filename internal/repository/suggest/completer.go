// Package suggest implements prefix completion over a sorted-set dictionary.
//
// All members carry score 0 so ZRANGEBYLEX returns them in lexicographic
// order, the standard autocomplete layout.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/shopdex/internal/domain"
)

const dictKey = domain.KeyPrefix + "suggest:dict"

type store interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByLex(ctx context.Context, key, min, max string, limit int) ([]string, error)
}

// Completer stores and completes search phrases.
type Completer struct {
	store store
	key   string
}

// New creates a completer over the shared suggestion dictionary.
func New(s store) *Completer {
	return &Completer{store: s, key: dictKey}
}

// Record adds a normalized phrase to the dictionary.
func (c *Completer) Record(ctx context.Context, phrase string) error {
	phrase = Normalize(phrase)
	if phrase == "" {
		return nil
	}
	if err := c.store.ZAdd(ctx, c.key, 0, phrase); err != nil {
		return fmt.Errorf("record phrase: %w", err)
	}
	return nil
}

// Complete returns up to limit dictionary phrases starting with prefix,
// in lexicographic order.
func (c *Completer) Complete(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = Normalize(prefix)
	if prefix == "" {
		return nil, nil
	}
	// [prefix .. [prefix\xff covers every member extending the prefix.
	min := "[" + prefix
	max := "[" + prefix + "\xff"
	phrases, err := c.store.ZRangeByLex(ctx, c.key, min, max, limit)
	if err != nil {
		return nil, fmt.Errorf("complete %q: %w", prefix, err)
	}
	return phrases, nil
}

// Normalize lowercases and collapses whitespace so the dictionary stores
// one form per phrase.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
