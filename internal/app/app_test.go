package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HlhDataScience/DocsIngestionApi/internal/config"
	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

func offlineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.StoreBackend = "memory"
	cfg.EmbeddingProvider = "hash"
	cfg.EmbeddingDimension = 16
	cfg.LLMProvider = "langchain"
	cfg.LLMBaseURL = "http://127.0.0.1:1/v1"
	return cfg
}

func TestNewOffline(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &storage.MemoryStore{}, a.Store)
	assert.IsType(t, &embedding.HashEmbedder{}, a.Embedder)
	assert.Equal(t, 16, a.Embedder.Dimension())
	assert.NotNil(t, a.Graph)
	assert.NotNil(t, a.Search)
}

func TestNewRunsSearchAgainstStore(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Search.Search(context.Background(), search.Query{UploadAuthor: "ada"})
	require.NoError(t, err)
	assert.Equal(t, a.Config.DefaultCollection, res.Collection)
	assert.Zero(t, res.Total)
}

func TestNewSimilarUsesEmbedder(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Store.EnsureCollection(ctx, a.Config.DefaultCollection, a.Embedder.Dimension()))
	vectors, err := a.Embedder.Embed(ctx, []string{"How do I reset my password?"})
	require.NoError(t, err)
	require.NoError(t, a.Store.Upsert(ctx, a.Config.DefaultCollection, []storage.Record{{
		ID:     storage.RecordID(a.Config.DefaultCollection, "ada", "faq", "run-1", 1),
		Vector: vectors[0],
		Payload: storage.Payload{
			Question: "How do I reset my password?", Answer: "Use the portal.",
			DocName: "faq", UploadAuthor: "ada", IndexID: 1, IngestionID: "run-1",
		},
	}}))

	res, err := a.Search.Similar(ctx, search.SimilarQuery{Text: "How do I reset my password?"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-6)
}

func TestNewRejectsBadInput(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	report, err := a.Graph.Run(context.Background(), ingest.Request{})
	require.ErrorIs(t, err, ingest.ErrInvalidRequest)
	assert.Equal(t, ingest.OutcomeFailed, report.Outcome)
}

func TestNewUnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store", func(c *config.Config) { c.StoreBackend = "postgres" }},
		{"embedding", func(c *config.Config) { c.EmbeddingProvider = "gemini" }},
		{"llm", func(c *config.Config) { c.LLMProvider = "gemini" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := offlineConfig()
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg, nil)
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestNewMissingExamplesFile(t *testing.T) {
	cfg := offlineConfig()
	cfg.QAExamplesPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewWithExamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"question":"Q?","answer":"A."}]`), 0o600))

	cfg := offlineConfig()
	cfg.QAExamplesPath = path
	cfg.QAReview = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	cfg := offlineConfig()
	cfg.EmbeddingProvider = "openai"
	cfg.OpenAIAPIKey = ""

	_, _, err := NewEmbedder(cfg)
	require.Error(t, err)
}

func TestNewEmbedderWithCache(t *testing.T) {
	cfg := offlineConfig()
	cfg.EmbeddingProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.EmbeddingCacheDir = t.TempDir()

	provider, closeFn, err := NewEmbedder(cfg)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.IsType(t, &embedding.CachedProvider{}, provider)
	assert.Equal(t, cfg.EmbeddingDimension, provider.Dimension())
	require.NoError(t, closeFn())
}
