// Package ingest runs documents through the ingestion graph:
// Parsing → Segmenting → Generating → Embedding → Persisting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/HlhDataScience/DocsIngestionApi/internal/chunking"
	"github.com/HlhDataScience/DocsIngestionApi/internal/document"
	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/qa"
	"github.com/HlhDataScience/DocsIngestionApi/internal/source"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// DefaultEmbedBatchSize is the number of pairs embedded per provider call.
const DefaultEmbedBatchSize = 64

// Opener opens the document named by input_docs_path.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Parser extracts text from document bytes.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, format document.Format) (*document.Parsed, error)
}

// PairGenerator produces Q&A pairs for one chunk.
type PairGenerator interface {
	Generate(ctx context.Context, chunk chunking.Chunk) ([]qa.Pair, error)
}

// Deps are the collaborators of a Graph.
type Deps struct {
	Source    Opener
	Parser    Parser
	Segmenter *chunking.Segmenter
	Generator PairGenerator
	Embedder  embedding.Provider
	Store     storage.VectorStore
}

// Graph is the ingestion pipeline. It is built once per process and shared
// by all requests; each Run works on fresh per-request state.
type Graph struct {
	deps   Deps
	stages []stage
	pool   *ants.Pool
	locks  *keyLock

	concurrency       int
	embedBatchSize    int
	autoCreate        bool
	defaultCollection string
	now               func() time.Time
	logger            *slog.Logger
}

type stage struct {
	name Stage
	run  func(ctx context.Context, st *state) error
}

// Option configures a Graph.
type Option func(*Graph) error

// WithConcurrency bounds concurrent generation and embedding calls across
// all runs. Default is runtime.NumCPU(), with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(g *Graph) error {
		if n < 1 {
			n = 1
		}
		g.concurrency = n
		return nil
	}
}

// WithEmbedBatchSize sets how many pairs go into one embedding call.
func WithEmbedBatchSize(n int) Option {
	return func(g *Graph) error {
		if n > 0 {
			g.embedBatchSize = n
		}
		return nil
	}
}

// WithAutoCreateCollection creates missing collections at preflight instead
// of failing with storage.ErrCollectionNotFound.
func WithAutoCreateCollection(enabled bool) Option {
	return func(g *Graph) error {
		g.autoCreate = enabled
		return nil
	}
}

// WithDefaultCollection fills requests that name no collection.
func WithDefaultCollection(name string) Option {
	return func(g *Graph) error {
		g.defaultCollection = name
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

func withClock(now func() time.Time) Option {
	return func(g *Graph) error {
		g.now = now
		return nil
	}
}

// NewGraph creates the graph and its worker pool. Call Release on shutdown.
func NewGraph(deps Deps, opts ...Option) (*Graph, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("ingest: source is required")
	case deps.Parser == nil:
		return nil, errors.New("ingest: parser is required")
	case deps.Generator == nil:
		return nil, errors.New("ingest: generator is required")
	case deps.Embedder == nil:
		return nil, errors.New("ingest: embedder is required")
	case deps.Store == nil:
		return nil, errors.New("ingest: store is required")
	}
	if deps.Segmenter == nil {
		deps.Segmenter = chunking.NewSegmenter()
	}

	g := &Graph{
		deps:           deps,
		locks:          newKeyLock(),
		concurrency:    max(runtime.NumCPU(), 1),
		embedBatchSize: DefaultEmbedBatchSize,
		autoCreate:     true,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(g.concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	g.pool = pool

	g.stages = []stage{
		{StagePreflight, g.preflight},
		{StageParsing, g.parse},
		{StageSegmenting, g.segment},
		{StageGenerating, g.generate},
		{StageEmbedding, g.embed},
		{StagePersisting, g.persist},
	}
	return g, nil
}

// Release stops the worker pool. The graph must not be used afterwards.
func (g *Graph) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Run ingests one document. The report is always returned; the error is
// non-nil exactly when the outcome is Failed, and is then a *StageError.
//
// Cancelling ctx before Persisting stops the run without writing anything.
// Model and embedding calls already in flight finish in the background and
// their results are discarded.
func (g *Graph) Run(ctx context.Context, req Request) (*Report, error) {
	start := g.now()
	if req.Collection == "" {
		req.Collection = g.defaultCollection
	}

	st := &state{
		req:         req,
		ingestionID: uuid.NewString(),
	}
	logger := g.logger.With(
		"ingestion_id", st.ingestionID,
		"doc_name", req.DocName,
		"upload_author", req.UploadAuthor,
		"collection", req.Collection,
	)
	logger.Info("Starting ingestion", "path", req.InputDocsPath)

	var runErr error
	for _, s := range g.stages {
		st.stage = s.name
		if err := s.run(ctx, st); err != nil {
			runErr = &StageError{Stage: s.name, Err: err}
			break
		}
	}

	report := st.report(runErr)
	report.Duration = g.now().Sub(start)
	report.DurationMS = report.Duration.Milliseconds()

	if runErr != nil {
		logger.Error("Ingestion failed",
			"stage", report.Stage,
			"failures", len(report.Failures),
			"error", runErr)
		return report, runErr
	}

	logger.Info("Ingestion complete",
		"outcome", report.Outcome,
		"records", report.Records,
		"chunks", report.Chunks,
		"failures", len(report.Failures),
		"duration", report.Duration)
	return report, nil
}

// preflight validates the request, checks the target collection and fails
// fast on a duplicate. The duplicate check is repeated under the identity
// lock before writing.
func (g *Graph) preflight(ctx context.Context, st *state) error {
	if err := st.req.Validate(); err != nil {
		return err
	}

	collection := st.req.Collection
	if g.autoCreate {
		if err := g.deps.Store.EnsureCollection(ctx, collection, g.deps.Embedder.Dimension()); err != nil {
			return fmt.Errorf("ensure collection: %w", err)
		}
	} else {
		exists, err := g.deps.Store.CollectionExists(ctx, collection)
		if err != nil {
			return fmt.Errorf("check collection: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collection)
		}
	}

	if !st.req.UpdateCollection {
		return g.checkDuplicate(ctx, st)
	}
	return nil
}

func (g *Graph) checkDuplicate(ctx context.Context, st *state) error {
	n, err := g.deps.Store.Count(ctx, st.req.Collection, storage.Filter{
		UploadAuthor: st.req.UploadAuthor,
		DocName:      st.req.DocName,
	})
	if err != nil {
		return fmt.Errorf("check existing records: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d records exist for %q by %q; set update_collection to replace them",
			ErrDuplicateIngestion, n, st.req.DocName, st.req.UploadAuthor)
	}
	return nil
}

func (g *Graph) parse(ctx context.Context, st *state) error {
	format := st.req.Format
	if format == "" {
		f, err := document.FormatFromPath(source.ObjectPath(st.req.InputDocsPath))
		if err != nil {
			return err
		}
		format = f
	}

	rc, err := g.deps.Source.Open(ctx, st.req.InputDocsPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", st.req.InputDocsPath, err)
	}
	defer rc.Close()

	parsed, err := g.deps.Parser.Parse(ctx, rc, format)
	if err != nil {
		return err
	}
	st.text = parsed.Text
	st.headings = parsed.Headings
	return nil
}

func (g *Graph) segment(_ context.Context, st *state) error {
	st.chunks = g.deps.Segmenter.SegmentOutline(st.text, st.headings)
	st.text = ""
	st.headings = nil
	return nil
}
