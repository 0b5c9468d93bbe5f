// Package chi implements the HTTP API on the chi router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain"
	healthuc "github.com/kailas-cloud/shopdex/internal/usecase/health"
	"github.com/kailas-cloud/shopdex/internal/usecase/pipeline"
)

// Searcher runs one search turn.
type Searcher interface {
	Search(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Suggester serves typeahead completions.
type Suggester interface {
	Suggest(ctx context.Context, sessionID, raw string) ([]string, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search pipeline over HTTP.
type Server struct {
	search        Searcher
	suggest       Suggester
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. suggest can be nil.
func NewServer(search Searcher, suggest Suggester, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		search:  search,
		suggest: suggest,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		malformedQueryHandler,
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
	}
	return s
}

// Routes mounts all API handlers.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/suggest", s.handleSuggest)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}

	resp, err := s.search.Search(r.Context(), pipeline.Request{
		Query:               req.Query,
		UserID:              req.UserID,
		SessionID:           req.SessionID,
		PriorQuery:          req.PriorQuery,
		GenerateSuggestions: req.Suggestions,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseFromPipeline(resp))
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.suggest == nil {
		writeError(w, http.StatusNotFound, codeBadRequest, "suggestions are not enabled")
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "q is required")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	phrases, err := s.suggest.Suggest(r.Context(), sessionID, q)
	if err != nil {
		// A newer request for the same session took over; this response
		// would be stale by the time the client sees it.
		if errors.Is(err, domain.ErrSuperseded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: phrases})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMalformedQuery,
		domain.ErrRetrievalUnavailable,
		domain.ErrUnauthorized,
		domain.ErrProfileNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// malformedQueryHandler rejects unparseable queries with guidance the user
// can act on.
func malformedQueryHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrMalformedQuery) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    codeMalformedQuery,
		Message: msg,
		Hint:    `Try product keywords with optional limits, e.g. "gaming laptop under $1500".`,
	})
	return true
}
