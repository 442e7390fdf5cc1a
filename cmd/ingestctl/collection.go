package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/app"
	"github.com/HlhDataScience/DocsIngestionApi/internal/config"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage vector collections",
}

var collectionEnsureCmd = &cobra.Command{
	Use:   "ensure [NAME]",
	Short: "Create a collection sized for the configured embedding model",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollectionEnsure,
}

var collectionStatusCmd = &cobra.Command{
	Use:   "status [NAME]",
	Short: "Show point count and vector dimension of a collection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollectionStatus,
}

func init() {
	collectionCmd.AddCommand(collectionEnsureCmd, collectionStatusCmd)
	rootCmd.AddCommand(collectionCmd)
}

func collectionName(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.DefaultCollection
}

func runCollectionEnsure(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	store, err := app.NewStore(cfg, cfg.Logger())
	if err != nil {
		return err
	}
	defer store.Close()

	name := collectionName(cfg, args)
	fmt.Printf("Ensuring collection %s (dimension %d)...\n", name, cfg.EmbeddingDimension)
	if err := store.EnsureCollection(ctx, name, cfg.EmbeddingDimension); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	fmt.Println("Collection ready")
	return nil
}

func runCollectionStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	store, err := app.NewStore(cfg, cfg.Logger())
	if err != nil {
		return err
	}
	defer store.Close()

	name := collectionName(cfg, args)
	info, err := store.CollectionInfo(ctx, name)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		fmt.Printf("Collection %s does not exist\n", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	fmt.Printf("Collection: %s\n", info.Name)
	fmt.Printf("  Points: %d\n", info.Points)
	fmt.Printf("  Dimension: %d\n", info.Dimension)
	if info.Dimension != cfg.EmbeddingDimension {
		fmt.Printf("  Warning: configured embedding dimension is %d\n", cfg.EmbeddingDimension)
	}
	return nil
}
