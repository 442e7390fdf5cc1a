package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// Ingester runs one document through the ingestion graph.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Report, error)
}

// Searcher answers structured and similarity Q&A lookups.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
	Similar(ctx context.Context, q search.SimilarQuery) (*search.SimilarResult, error)
	Documents(ctx context.Context, collection, uploadAuthor string) ([]string, error)
}

// CollectionInspector reports collection metadata.
type CollectionInspector interface {
	CollectionInfo(ctx context.Context, collection string) (*storage.CollectionInfo, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Ingester          Ingester
	Searcher          Searcher
	Collections       CollectionInspector
	DefaultCollection string
	Version           string
	Logger            *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docs-ingestion-server",
		Version: version,
	}, &mcp.ServerOptions{Logger: logger})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_qa",
		Description: "List ingested question/answer pairs of an author, optionally for one document or a single index_id. Results are paginated.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "similar_qa",
		Description: "Find the stored question/answer pairs whose questions are most similar to a free-text query. Results are ordered by similarity score.",
	}, makeSimilarHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Ingest a document: extract its text, generate question/answer pairs, embed them and store them in the vector collection. Returns the ingestion report.",
	}, makeIngestHandler(cfg.Ingester))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "collection_status",
		Description: "Report whether a collection exists, its point count and vector dimension, and optionally the documents of an author.",
	}, makeStatusHandler(cfg.Collections, cfg.Searcher, cfg.DefaultCollection))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
