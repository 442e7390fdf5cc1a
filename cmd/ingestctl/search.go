package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/app"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
)

var searchFlags struct {
	author     string
	docName    string
	index      int
	orderBy    string
	descending bool
	collection string
	page       int
	pageSize   int
	asJSON     bool
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List stored Q&A pairs of an author",
	Args:  cobra.NoArgs,
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.author, "author", "", "upload author (required)")
	f.StringVar(&searchFlags.docName, "doc", "", "document name")
	f.IntVar(&searchFlags.index, "index", 0, "index_id of a single pair")
	f.StringVar(&searchFlags.orderBy, "order-by", "", "index_id, doc_name or ingestion_timestamp")
	f.BoolVar(&searchFlags.descending, "desc", false, "sort descending")
	f.StringVar(&searchFlags.collection, "collection", "", "collection (default: DEFAULT_COLLECTION)")
	f.IntVar(&searchFlags.page, "page", search.DefaultPage, "page number")
	f.IntVar(&searchFlags.pageSize, "page-size", search.DefaultPageSize, "records per page")
	f.BoolVar(&searchFlags.asJSON, "json", false, "print the result as JSON")
	_ = searchCmd.MarkFlagRequired("author")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	q := search.Query{
		Collection:   searchFlags.collection,
		UploadAuthor: searchFlags.author,
		DocName:      searchFlags.docName,
		OrderBy:      searchFlags.orderBy,
		Descending:   searchFlags.descending,
		Page:         searchFlags.page,
		PageSize:     searchFlags.pageSize,
	}
	if cmd.Flags().Changed("index") {
		q.Index = &searchFlags.index
	}

	result, err := search.NewEngine(store, cfg.DefaultCollection, nil).Search(ctx, q)
	if err != nil {
		return err
	}

	if searchFlags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Collection: %s\n", result.Collection)
	fmt.Printf("Documents: %v\n", result.Documents)
	fmt.Printf("Total: %d (page %d, %d per page)\n", result.Total, result.Page, result.PageSize)
	for _, item := range result.Items {
		fmt.Println()
		fmt.Printf("[%s #%d] %s\n", item.DocName, item.IndexID, item.Question)
		fmt.Printf("  %s\n", item.Answer)
	}
	return nil
}
