package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedQuery signals query text the planner cannot work with.
	// Fatal and user-correctable: mapped to a 4xx rejection with guidance.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrRetrievalUnavailable signals the vector index stayed unreachable
	// after the retrieval retry policy was exhausted. Fatal, retryable.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrProfileNotFound signals a missing user profile. Non-fatal:
	// personalization treats absence as the neutral profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals an LLM completion failure.
	// Absorbed by the response generator's templated fallback.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrSuperseded signals a suggestion run cancelled by a newer request
	// for the same session.
	ErrSuperseded = errors.New("superseded by newer request")
	// ErrUnauthorized signals a missing or invalid API key.
	ErrUnauthorized = errors.New("unauthorized")
)

// StageError wraps a stage failure with the pipeline stage name, so the
// orchestrator can report which stage degraded or aborted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage name.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
