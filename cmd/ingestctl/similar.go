package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/app"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
)

var similarFlags struct {
	author     string
	docName    string
	collection string
	limit      int
	asJSON     bool
}

var similarCmd = &cobra.Command{
	Use:   "similar QUESTION...",
	Short: "Find stored Q&A pairs whose questions resemble QUESTION",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSimilar,
}

func init() {
	f := similarCmd.Flags()
	f.StringVar(&similarFlags.author, "author", "", "only match this upload author")
	f.StringVar(&similarFlags.docName, "doc", "", "only match this document")
	f.StringVar(&similarFlags.collection, "collection", "", "collection (default: DEFAULT_COLLECTION)")
	f.IntVar(&similarFlags.limit, "limit", search.DefaultSimilarLimit, "maximum number of hits")
	f.BoolVar(&similarFlags.asJSON, "json", false, "print the result as JSON")

	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
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

	embedder, closeEmbedder, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	if closeEmbedder != nil {
		defer closeEmbedder()
	}

	engine := search.NewEngine(store, cfg.DefaultCollection, nil, search.WithEmbedder(embedder))
	result, err := engine.Similar(ctx, search.SimilarQuery{
		Text:         strings.Join(args, " "),
		UploadAuthor: similarFlags.author,
		DocName:      similarFlags.docName,
		Collection:   similarFlags.collection,
		Limit:        similarFlags.limit,
	})
	if err != nil {
		return err
	}

	if similarFlags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Collection: %s\n", result.Collection)
	fmt.Printf("Hits: %d\n", len(result.Hits))
	for _, hit := range result.Hits {
		fmt.Println()
		fmt.Printf("%.3f [%s #%d by %s] %s\n", hit.Score, hit.DocName, hit.IndexID, hit.UploadAuthor, hit.Question)
		fmt.Printf("  %s\n", hit.Answer)
	}
	return nil
}
