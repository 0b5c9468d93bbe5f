package redis

import (
	"context"

	"github.com/kailas-cloud/shopdex/internal/db"
)

// ZAdd adds a member with the given score to a sorted set.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(score, member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRangeByLex returns up to limit members in the lexicographic range [min, max].
// Bounds use Redis lex syntax: "[prefix", "(prefix" or "-"/"+" for open ends.
func (s *Store) ZRangeByLex(ctx context.Context, key, min, max string, limit int) ([]string, error) {
	cmd := s.b().Zrangebylex().Key(key).Min(min).Max(max).Limit(0, int64(limit)).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRangeByLex, Err: err}
	}
	return members, nil
}
