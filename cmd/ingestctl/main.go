// Package main provides the ingestctl CLI for ingesting documents and
// inspecting the Q&A collections.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "Document to Q&A ingestion tool",
	Long: `CLI tool for turning documents into question/answer pairs stored in Qdrant.

Configuration is read from .env, the TOML file named by CONFIG_FILE and the
environment, exactly as the server reads it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the logger. Commands that
// call models pass validate=true.
func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	slog.SetDefault(cfg.Logger())
	return cfg, nil
}
