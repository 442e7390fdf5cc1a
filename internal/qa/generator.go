// Package qa turns text chunks into grounded question/answer pairs with a
// language model.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HlhDataScience/DocsIngestionApi/internal/chunking"
	"github.com/HlhDataScience/DocsIngestionApi/internal/llm"
)

const (
	// DefaultMaxMalformedRetries is how many times a malformed reply is
	// retried with the same input.
	DefaultMaxMalformedRetries = 2

	// DefaultMaxRefinements bounds the evaluator/refiner rounds per chunk.
	DefaultMaxRefinements = 3
)

// Generator produces Q&A pairs for one chunk at a time. It is safe for
// concurrent use.
type Generator struct {
	completer      llm.Completer
	maxRetries     int
	newBackOff     func() backoff.BackOff
	examples       *ExampleBank
	examplesK      int
	review         bool
	maxRefinements int
	logger         *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxMalformedRetries sets the malformed-output retry bound.
func WithMaxMalformedRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithRateLimitBackOff sets the backoff policy used for rate-limited calls.
func WithRateLimitBackOff(newBackOff func() backoff.BackOff) Option {
	return func(g *Generator) {
		g.newBackOff = newBackOff
	}
}

// WithExamples adds k examples sampled from bank to every prompt.
func WithExamples(bank *ExampleBank, k int) Option {
	return func(g *Generator) {
		g.examples = bank
		g.examplesK = k
	}
}

// WithReview enables the evaluator/refiner loop with at most maxRounds
// refinements.
func WithReview(maxRounds int) Option {
	return func(g *Generator) {
		g.review = true
		if maxRounds > 0 {
			g.maxRefinements = maxRounds
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a generator on top of completer.
func NewGenerator(completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		completer:      completer,
		maxRetries:     DefaultMaxMalformedRetries,
		newBackOff:     defaultBackOff,
		maxRefinements: DefaultMaxRefinements,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Generate asks the model for pairs grounded in chunk. Zero pairs is a valid
// result. Malformed replies are retried up to the configured bound before
// ErrGenerationFailure; rate limits are retried with backoff and surface
// wrapped in llm.ErrRateLimited once exhausted.
func (g *Generator) Generate(ctx context.Context, chunk chunking.Chunk) ([]Pair, error) {
	examples := g.sampleExamples()
	prompt := llm.Prompt{
		System: generatorSystemPrompt,
		User:   buildGeneratorPrompt(chunk.Text, chunk.HeaderPath, examples),
	}

	pairs, err := g.completePairs(ctx, prompt, chunk.Index)
	if err != nil {
		return nil, err
	}

	if g.review && len(pairs) > 0 {
		pairs = g.refine(ctx, chunk, pairs, examples)
	}

	for i := range pairs {
		pairs[i].ChunkIndex = chunk.Index
	}
	return pairs, nil
}

// completePairs runs the prompt until the reply parses, within the malformed
// retry budget.
func (g *Generator) completePairs(ctx context.Context, prompt llm.Prompt, chunkIndex int) ([]Pair, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		raw, err := g.complete(ctx, prompt)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) || ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrGenerationFailure, chunkIndex, err)
		}

		pairs, err := parsePairs(raw)
		if err == nil {
			return pairs, nil
		}

		lastErr = err
		g.logger.Warn("Malformed model output",
			"chunk", chunkIndex,
			"attempt", attempt+1,
			"error", err)
	}

	return nil, fmt.Errorf("%w: chunk %d: %d attempts: %v", ErrGenerationFailure, chunkIndex, g.maxRetries+1, lastErr)
}

// complete calls the model, retrying rate-limited calls with exponential
// backoff. Other errors are permanent.
func (g *Generator) complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	var out string
	operation := func() error {
		raw, err := g.completer.Complete(ctx, prompt)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}
		out = raw
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(g.newBackOff(), ctx)); err != nil {
		return "", err
	}
	return out, nil
}

func (g *Generator) sampleExamples() []Example {
	if g.examples == nil || g.examplesK <= 0 {
		return nil
	}
	examples, err := g.examples.Sample(g.examplesK)
	if err != nil {
		g.logger.Warn("Failed to sample examples", "error", err)
		return nil
	}
	return examples
}
