package suggest

import "context"

// Normalizer reduces raw text to normalized keyword tokens. The planner
// provides this so suggestions and search normalize identically.
type Normalizer interface {
	Keywords(ctx context.Context, raw string) []string
}

// Completer looks up dictionary phrases by prefix.
type Completer interface {
	Complete(ctx context.Context, prefix string, limit int) ([]string, error)
}
