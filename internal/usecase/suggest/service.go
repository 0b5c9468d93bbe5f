// Package suggest serves keyword completions while the user types. A newer
// request in the same session cancels the one still in flight; the search
// path is never affected.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
)

// Config bounds the suggestion lookup.
type Config struct {
	Limit        int
	MinPrefixLen int
}

type run struct {
	cancel     context.CancelFunc
	superseded bool
}

// Service is the suggestion pipeline.
type Service struct {
	norm       Normalizer
	completer  Completer
	cfg        Config
	superseded prometheus.Counter
	logger     *zap.Logger

	mu       sync.Mutex
	inflight map[string]*run
}

// New creates a suggestion service.
func New(norm Normalizer, completer Completer, cfg Config, superseded prometheus.Counter, logger *zap.Logger) *Service {
	return &Service{
		norm:       norm,
		completer:  completer,
		cfg:        cfg,
		superseded: superseded,
		logger:     logger,
		inflight:   make(map[string]*run),
	}
}

// Suggest returns completions for the typed text. A short prefix returns
// nothing; a request superseded by a newer one in the same session returns
// domain.ErrSuperseded.
func (s *Service) Suggest(ctx context.Context, sessionID, raw string) ([]string, error) {
	prefix := strings.Join(s.norm.Keywords(ctx, raw), " ")
	if len(prefix) < s.cfg.MinPrefixLen {
		return nil, nil
	}

	var current *run
	if sessionID != "" {
		cctx, cancel := context.WithCancel(ctx)
		ctx = cctx
		current = &run{cancel: cancel}

		s.mu.Lock()
		if prev := s.inflight[sessionID]; prev != nil {
			prev.superseded = true
			prev.cancel()
			s.superseded.Inc()
		}
		s.inflight[sessionID] = current
		s.mu.Unlock()

		defer func() {
			cancel()
			s.mu.Lock()
			if s.inflight[sessionID] == current {
				delete(s.inflight, sessionID)
			}
			s.mu.Unlock()
		}()
	}

	phrases, err := s.completer.Complete(ctx, prefix, s.cfg.Limit)
	if err != nil {
		if current != nil && s.wasSuperseded(current) {
			return nil, domain.ErrSuperseded
		}
		return nil, fmt.Errorf("complete %q: %w", prefix, err)
	}
	return phrases, nil
}

func (s *Service) wasSuperseded(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.superseded
}
