// Package app wires configured backends into the ingestion graph and search
// engine shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/HlhDataScience/DocsIngestionApi/internal/chunking"
	"github.com/HlhDataScience/DocsIngestionApi/internal/config"
	"github.com/HlhDataScience/DocsIngestionApi/internal/document"
	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/llm"
	"github.com/HlhDataScience/DocsIngestionApi/internal/qa"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/source"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// App holds the process-wide components.
type App struct {
	Config   *config.Config
	Store    storage.VectorStore
	Sources  *source.Mux
	Embedder embedding.Provider
	Graph    *ingest.Graph
	Search   *search.Engine

	closers []func() error
	logger  *slog.Logger
}

// New builds every component from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	store, err := NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	sources, err := NewSources(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sources = sources

	embedder, closeEmbedder, err := NewEmbedder(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Embedder = embedder
	if closeEmbedder != nil {
		a.closers = append(a.closers, closeEmbedder)
	}

	completer, err := NewCompleter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	genOpts := []qa.Option{
		qa.WithMaxMalformedRetries(cfg.QAMaxRetries),
		qa.WithLogger(logger),
	}
	if cfg.QAReview {
		genOpts = append(genOpts, qa.WithReview(cfg.QAMaxRefinements))
	}
	if cfg.QAExamplesPath != "" {
		bank, err := qa.NewExampleBank(cfg.QAExamplesPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		genOpts = append(genOpts, qa.WithExamples(bank, cfg.QAExamplesK))
	}

	graph, err := ingest.NewGraph(ingest.Deps{
		Source:    sources,
		Parser:    document.NewParser(),
		Segmenter: chunking.NewSegmenter(chunking.WithMaxTokens(cfg.ChunkMaxTokens)),
		Generator: qa.NewGenerator(completer, genOpts...),
		Embedder:  embedder,
		Store:     store,
	},
		ingest.WithConcurrency(cfg.IngestConcurrency),
		ingest.WithAutoCreateCollection(cfg.AutoCreateCollection),
		ingest.WithDefaultCollection(cfg.DefaultCollection),
		ingest.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Graph = graph
	a.closers = append(a.closers, func() error {
		graph.Release()
		return nil
	})

	a.Search = search.NewEngine(store, cfg.DefaultCollection, logger, search.WithEmbedder(embedder))
	return a, nil
}

// Close releases components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewStore creates the configured vector store. The Qdrant connection is
// opened lazily on first use.
func NewStore(cfg *config.Config, logger *slog.Logger) (storage.VectorStore, error) {
	switch cfg.StoreBackend {
	case "qdrant":
		logger.Info("Using Qdrant vector store", "host", cfg.QdrantHost, "port", cfg.QdrantPort)
		return storage.NewQdrantStorage(storage.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
		}), nil
	case "memory":
		logger.Warn("Using in-memory vector store; records are lost on exit")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}
}

// NewSources registers the file, s3 and github sources.
func NewSources(ctx context.Context, cfg *config.Config) (*source.Mux, error) {
	mux := source.NewMux()

	s3Source, err := source.NewS3Source(ctx, source.S3Config{
		Region:    cfg.AWSRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 source: %w", err)
	}
	mux.Register("s3", s3Source)

	ghSource, err := source.NewGitHubSource(cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("create github source: %w", err)
	}
	mux.Register("github", ghSource)

	return mux, nil
}

// NewEmbedder creates the configured embedding provider. The returned close
// function is non-nil when the provider holds resources.
func NewEmbedder(cfg *config.Config) (embedding.Provider, func() error, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		client, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, err
		}
		embedder := embedding.NewEmbedder(client, embedding.WithModel(cfg.EmbeddingModel, cfg.EmbeddingDimension))
		if cfg.EmbeddingCacheDir == "" {
			return embedder, nil, nil
		}
		cached, err := embedding.NewCachedProvider(embedder, cfg.EmbeddingModel, cfg.EmbeddingCacheDir)
		if err != nil {
			return nil, nil, err
		}
		return cached, cached.Close, nil
	case "hash":
		return embedding.NewHashEmbedder(cfg.EmbeddingDimension), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.EmbeddingProvider)
	}
}

// NewCompleter creates the configured language model behind the shared rate
// limiter.
func NewCompleter(cfg *config.Config) (llm.Completer, error) {
	var completer llm.Completer
	switch cfg.LLMProvider {
	case "openai":
		client, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		completer = llm.NewOpenAICompleter(client.Client(), cfg.LLMModel)
	case "langchain":
		local, err := llm.NewLocalCompleter(cfg.LLMBaseURL, cfg.LLMModel, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		completer = local
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrInvalidConfig, cfg.LLMProvider)
	}
	return llm.Limited(completer, llm.NewRateLimiter(cfg.LLMRequestsPerSecond, cfg.LLMBurst)), nil
}
