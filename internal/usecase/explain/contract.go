package explain

import "context"

// Generator produces a chat completion for a system + user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
