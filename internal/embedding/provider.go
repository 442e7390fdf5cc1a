// Package embedding converts Q&A text into dense vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingProviderUnavailable is returned when the provider keeps
// failing with retryable errors (rate limits, 5xx, network) after backoff.
var ErrEmbeddingProviderUnavailable = errors.New("embedding provider unavailable")

// Provider produces one vector per input text, in input order, each of
// Dimension() elements.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
