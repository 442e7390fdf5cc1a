// Package llm provides chat-completion backends behind a single Completer
// interface.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the provider rejects a call for exceeding
// its rate limit. Callers retry it with backoff.
var ErrRateLimited = errors.New("language model rate limited")

// Prompt is one chat completion request: a system instruction and the user
// content it applies to.
type Prompt struct {
	System string
	User   string
}

// Completer returns the model's reply to a prompt. Implementations request
// JSON output at temperature 0 and must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

// Complete calls f(ctx, p).
func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
