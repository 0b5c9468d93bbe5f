// Package pipeline orchestrates one search turn through the staged state
// machine: plan, retrieve, personalize, rank, explain. Only malformed
// queries and unavailable retrieval fail a search; every other stage
// degrades and the pipeline carries on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
	"github.com/kailas-cloud/shopdex/internal/domain/profile"
	"github.com/kailas-cloud/shopdex/internal/domain/query"
	domrank "github.com/kailas-cloud/shopdex/internal/domain/rank"
	"github.com/kailas-cloud/shopdex/internal/logger"
	"github.com/kailas-cloud/shopdex/internal/metrics"
	"github.com/kailas-cloud/shopdex/internal/usecase/explain"
	"github.com/kailas-cloud/shopdex/internal/usecase/retrieve"
)

// State is the orchestrator position in the staged search.
type State string

// Pipeline states in execution order.
const (
	StatePlanning      State = "planning"
	StateRetrieving    State = "retrieving"
	StatePersonalizing State = "personalizing"
	StateRanking       State = "ranking"
	StateExplaining    State = "explaining"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Config holds per-stage budgets and the response cap.
type Config struct {
	PlanTimeout        time.Duration
	RetrieveTimeout    time.Duration
	PersonalizeTimeout time.Duration
	RankTimeout        time.Duration
	ExplainTimeout     time.Duration
	MaxProducts        int
}

// Request is one search turn.
type Request struct {
	Query               string
	UserID              string
	SessionID           string
	PriorQuery          string // previous turn, for elliptical follow-ups
	GenerateSuggestions bool
}

// Response is the assembled search answer.
type Response struct {
	State       State
	Products    []domrank.Entry // capped at Config.MaxProducts
	Result      domrank.Result  // full ranking, including compare groups
	Narrative   explain.Narrative
	Suggestions []string
	Notes       []string
}

// Service is the search orchestrator.
type Service struct {
	planner      Planner
	retriever    Retriever
	personalizer Personalizer
	guard        Guard
	ranker       Ranker
	explainer    Explainer
	profiles     ProfileReader
	sink         DeltaSink
	suggester    Suggester
	recorder     Recorder
	cfg          Config
	logger       *zap.Logger
}

// New creates the orchestrator. guard, suggester and recorder are optional.
func New(
	planner Planner,
	retriever Retriever,
	personalizer Personalizer,
	guard Guard,
	ranker Ranker,
	explainer Explainer,
	profiles ProfileReader,
	sink DeltaSink,
	suggester Suggester,
	recorder Recorder,
	cfg Config,
	log *zap.Logger,
) *Service {
	return &Service{
		planner:      planner,
		retriever:    retriever,
		personalizer: personalizer,
		guard:        guard,
		ranker:       ranker,
		explainer:    explainer,
		profiles:     profiles,
		sink:         sink,
		suggester:    suggester,
		recorder:     recorder,
		cfg:          cfg,
		logger:       log,
	}
}

// Search runs the full staged pipeline for one request.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	state := StatePlanning

	// Plan.
	var intent query.Intent
	err := s.stage(ctx, "plan", s.cfg.PlanTimeout, func(sctx context.Context) error {
		var prior *query.Intent
		if req.PriorQuery != "" {
			if pi, perr := s.planner.Plan(sctx, req.PriorQuery, nil); perr == nil {
				prior = &pi
			}
		}
		var perr error
		intent, perr = s.planner.Plan(sctx, req.Query, prior)
		return perr
	})
	if err != nil {
		return s.fail(log, "plan", req, err, start)
	}

	var notes []string
	if intent.LowConfidence() {
		notes = append(notes, "Ignored a numeric limit without a clear unit; add one like $ or hours.")
	}

	// Retrieve.
	state = StateRetrieving
	var cands retrieve.Candidates
	var outcome retrieve.Outcome
	err = s.stage(ctx, "retrieve", s.cfg.RetrieveTimeout, func(sctx context.Context) error {
		var rerr error
		cands, outcome, rerr = s.retriever.Retrieve(sctx, &intent)
		return rerr
	})
	if err != nil {
		return s.fail(log, "retrieve", req, err, start)
	}
	if outcome.RelaxedConstraint != "" {
		notes = append(notes, fmt.Sprintf("Relaxed the %s constraint to find enough results.", outcome.RelaxedConstraint))
	}
	for _, entity := range outcome.DegradedEntities {
		notes = append(notes, fmt.Sprintf("No results for %q.", entity))
	}

	// Personalize. A failed or missing profile degrades to neutral scoring.
	state = StatePersonalizing
	var scored []domrank.Scored
	var delta profile.Delta
	_ = s.stage(ctx, "personalize", s.cfg.PersonalizeTimeout, func(sctx context.Context) error {
		prof := s.loadProfile(sctx, log, req.UserID)
		scored, delta = s.personalizer.Personalize(sctx, cands.Set, prof, req.UserID)
		return nil
	})

	// Policy filtering sits between personalization and ranking so flagged
	// listings never occupy result slots.
	if s.guard != nil {
		scored = s.guard.FilterScored(scored)
	}

	// Rank.
	state = StateRanking
	var ranked domrank.Result
	_ = s.stage(ctx, "rank", s.cfg.RankTimeout, func(context.Context) error {
		ranked = s.ranker.Rank(scored, &intent, cands.ByEntity)
		return nil
	})

	// Explain.
	state = StateExplaining
	var narrative explain.Narrative
	_ = s.stage(ctx, "explain", s.cfg.ExplainTimeout, func(sctx context.Context) error {
		narrative = s.explainer.Explain(sctx, &ranked, &intent)
		return nil
	})
	if narrative.Degraded {
		metrics.PipelineDegradedTotal.WithLabelValues("explain").Inc()
	}

	var suggestions []string
	if req.GenerateSuggestions && s.suggester != nil {
		if sugg, serr := s.suggester.Suggest(ctx, req.SessionID, req.Query); serr == nil {
			suggestions = sugg
		} else if !errors.Is(serr, domain.ErrSuperseded) {
			log.Warn("inline suggestions failed", zap.Error(serr))
		}
	}

	state = StateDone
	resp := Response{
		State:       state,
		Products:    ranked.Top(s.cfg.MaxProducts),
		Result:      ranked,
		Narrative:   narrative,
		Suggestions: suggestions,
		Notes:       notes,
	}

	// Write-backs happen after the response is assembled and never block it.
	if delta.UserID != "" {
		s.sink.Submit(delta)
	}
	if s.recorder != nil && ranked.Len() > 0 {
		s.recordQuery(req.Query)
	}

	log.Info("search pipeline completed",
		zap.String("query", req.Query),
		zap.String("user_id", req.UserID),
		zap.String("state", string(state)),
		zap.String("mode", string(intent.Mode())),
		zap.Int("products", len(resp.Products)),
		zap.Int("retrieval_attempts", outcome.Attempts),
		zap.String("relaxed_constraint", outcome.RelaxedConstraint),
		zap.Bool("narrative_degraded", narrative.Degraded),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (s *Service) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (s *Service) fail(log *zap.Logger, stage string, req Request, err error, start time.Time) (Response, error) {
	metrics.PipelineFailedTotal.WithLabelValues(stage).Inc()
	log.Warn("search pipeline failed",
		zap.String("stage", stage),
		zap.String("query", req.Query),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	return Response{State: StateFailed}, domain.NewStageError(stage, err)
}

// loadProfile returns nil (neutral) when the user is anonymous, the profile
// does not exist, or the store misbehaves. Only the last case is a
// degradation.
func (s *Service) loadProfile(ctx context.Context, log *zap.Logger, userID string) *profile.Profile {
	if userID == "" {
		return nil
	}
	prof, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileNotFound) {
			metrics.PipelineDegradedTotal.WithLabelValues("personalize").Inc()
			log.Warn("profile load failed, using neutral profile",
				zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return &prof
}

// recordQuery adds the phrase to the suggestion dictionary off the request
// path.
func (s *Service) recordQuery(raw string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.recorder.Record(ctx, raw); err != nil {
			s.logger.Warn("recording query phrase failed", zap.Error(err))
		}
	}()
}
