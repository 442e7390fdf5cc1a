package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

// Embedder generates embeddings with the OpenAI embeddings API.
// It batches requests for efficiency and implements exponential backoff on retryable errors.
type Embedder struct {
	client     *Client
	model      string
	dimension  int
	batchSize  int
	newBackOff func() backoff.BackOff
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithModel sets the model and its output dimension.
func WithModel(model string, dimension int) EmbedderOption {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
		if dimension > 0 {
			e.dimension = dimension
		}
	}
}

// WithBatchSize sets how many texts go into one request.
func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBackOff sets the retry policy for retryable errors.
func WithBackOff(newBackOff func() backoff.BackOff) EmbedderOption {
	return func(e *Embedder) {
		e.newBackOff = newBackOff
	}
}

// NewEmbedder creates a new Embedder with the given client.
func NewEmbedder(client *Client, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client:     client,
		model:      DefaultModel,
		dimension:  DefaultDimension,
		batchSize:  DefaultBatchSize,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Dimension returns the configured vector size.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings for the given texts.
// Batches requests and retries with exponential backoff on retryable errors.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	// Process in batches
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Rate limits, server errors and network failures are retried; once the
// backoff is exhausted they surface as ErrEmbeddingProviderUnavailable.
// Other API errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.model),
	}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isRetryable(err) {
				return fmt.Errorf("%w: %v", ErrEmbeddingProviderUnavailable, err) // Will retry with backoff
			}
			return backoff.Permanent(fmt.Errorf("embedding request failed: %w", err))
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts)))
		}

		// Convert float64 to float32 for storage compatibility
		embeddings = make([][]float32, len(texts))
		for _, data := range resp.Data {
			if data.Index < 0 || int(data.Index) >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding response index %d out of range", data.Index))
			}
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("embedding has %d dimensions, expected %d", len(data.Embedding), e.dimension))
			}
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(e.newBackOff(), ctx))
	return embeddings, err
}

// isRetryable reports whether err is a rate limit (HTTP 429), a server
// error or a transport failure without an API response.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
