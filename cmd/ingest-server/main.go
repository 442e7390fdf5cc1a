// Package main provides the HTTP and MCP server entry point for document ingestion.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HlhDataScience/DocsIngestionApi/internal/api"
	"github.com/HlhDataScience/DocsIngestionApi/internal/app"
	"github.com/HlhDataScience/DocsIngestionApi/internal/config"
	mcpserver "github.com/HlhDataScience/DocsIngestionApi/internal/mcp"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

const version = "v0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}()

	// Fail early when Qdrant is unreachable
	if q, ok := a.Store.(*storage.QdrantStorage); ok {
		waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
		err := q.WaitHealthy(waitCtx)
		waitCancel()
		if err != nil {
			log.Fatalf("failed to connect to Qdrant: %v", err)
		}
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Ingester:          a.Graph,
		Searcher:          a.Search,
		Collections:       a.Store,
		DefaultCollection: cfg.DefaultCollection,
		Version:           version,
		Logger:            logger,
	})

	router, err := api.NewRouter(api.Config{
		Ingester:      a.Graph,
		Searcher:      a.Search,
		Health:        a.Store,
		MCP:           mcpserver.NewHTTPHandler(server, &mcpserver.HTTPHandlerOptions{Logger: logger}),
		APIKeyHashes:  cfg.APIKeyHashes,
		CORSOrigins:   cfg.CORSOrigins,
		IngestTimeout: cfg.IngestTimeout,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to build router: %v", err)
	}

	httpServer := api.NewServer("0.0.0.0:"+cfg.Port, router, logger)

	if !cfg.ServerMode {
		// Stdio mode: MCP over stdin/stdout for local clients, HTTP API in background
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()

		logger.Info("Starting document ingestion MCP server (stdio mode)")
		if err := server.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("MCP server error", "error", err)
			shutdown(httpServer, logger)
			os.Exit(1)
		}
		shutdown(httpServer, logger)
		return
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdown(httpServer, logger)
	}
}

// shutdown lets in-flight requests finish for up to 30 seconds.
func shutdown(s *api.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
}
