// Package api serves the ingestion and search endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	mcpserver "github.com/HlhDataScience/DocsIngestionApi/internal/mcp"
)

// Config wires the router.
type Config struct {
	Ingester Ingester
	Searcher Searcher
	Health   mcpserver.HealthChecker
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	APIKeyHashes   []string
	CORSOrigins    []string
	RequestTimeout time.Duration // GET /search and /search/similar
	IngestTimeout  time.Duration // POST /uploadocs and /mcp
	Logger         *slog.Logger
}

// NewRouter builds the HTTP handler. It fails when a configured API key hash
// is malformed.
func NewRouter(cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 10 * time.Minute
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	keys, err := NewKeyVerifier(cfg.APIKeyHashes)
	if err != nil {
		return nil, err
	}
	if !keys.Enabled() {
		logger.Warn("No API key hashes configured; endpoints are unauthenticated")
	}

	h := NewHandlers(cfg.Ingester, cfg.Searcher, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", APIKeyHeader, "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	// public endpoints
	r.Get("/", mcpserver.NewLandingHandler())
	r.Get("/health", mcpserver.NewHealthHandler(cfg.Health))

	// protected endpoints
	r.Group(func(protected chi.Router) {
		protected.Use(RequireAPIKey(keys))

		protected.With(Deadline(cfg.RequestTimeout)).Get("/search", h.Search)
		protected.With(Deadline(cfg.RequestTimeout)).Get("/search/similar", h.Similar)
		protected.With(Deadline(cfg.IngestTimeout)).Post("/uploadocs", h.UploadDocs)
		if cfg.MCP != nil {
			protected.With(Deadline(cfg.IngestTimeout)).Handle("/mcp", cfg.MCP)
		}
	})

	return r, nil
}

// Server wraps the HTTP server instance.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
