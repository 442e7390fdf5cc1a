package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/app"
	"github.com/HlhDataScience/DocsIngestionApi/internal/document"
	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/source"
)

var ingestFlags struct {
	author     string
	docName    string
	collection string
	update     bool
	recursive  bool
	asJSON     bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest LOCATION",
	Short: "Ingest a document, or every document under a directory",
	Long: `Extracts text, generates question/answer pairs, embeds them and stores
them in the target collection.

LOCATION is a local path, s3://bucket/key or github://owner/repo/path[@ref].
With --recursive every supported document under LOCATION is ingested and
named after its file name without extension.

Environment variables:
  OPENAI_API_KEY   OpenAI API key (required for the openai providers)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  LLM_PROVIDER     openai or langchain (default: openai)`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.author, "author", "", "upload author (required)")
	f.StringVar(&ingestFlags.docName, "doc", "", "document name (default: file name without extension)")
	f.StringVar(&ingestFlags.collection, "collection", "", "target collection (default: DEFAULT_COLLECTION)")
	f.BoolVar(&ingestFlags.update, "update", false, "replace records of an earlier ingestion")
	f.BoolVarP(&ingestFlags.recursive, "recursive", "r", false, "ingest every document under LOCATION")
	f.BoolVar(&ingestFlags.asJSON, "json", false, "print reports as JSON")
	_ = ingestCmd.MarkFlagRequired("author")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()
	location := args[0]

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	locations := []string{location}
	if ingestFlags.recursive {
		if ingestFlags.docName != "" {
			return fmt.Errorf("--doc cannot be combined with --recursive")
		}
		locations, err = listDocuments(ctx, a.Sources, location)
		if err != nil {
			return err
		}
		fmt.Printf("Found %d documents under %s\n", len(locations), location)
	}

	var failed int
	for _, loc := range locations {
		docName := ingestFlags.docName
		if docName == "" {
			docName = docNameFromLocation(loc)
		}

		report, err := a.Graph.Run(ctx, ingest.Request{
			InputDocsPath:    loc,
			UploadAuthor:     ingestFlags.author,
			DocName:          docName,
			Collection:       ingestFlags.collection,
			UpdateCollection: ingestFlags.update,
		})
		if err != nil {
			failed++
		}
		printReport(report, loc)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if !ingestFlags.asJSON {
		fmt.Println()
		fmt.Printf("Documents: %d/%d\n", len(locations)-failed, len(locations))
		fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(locations))
	}
	return nil
}

// listDocuments returns the locations under root whose format is supported.
func listDocuments(ctx context.Context, lister source.Lister, root string) ([]string, error) {
	all, err := lister.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	var out []string
	for _, loc := range all {
		if _, err := document.FormatFromPath(source.ObjectPath(loc)); err == nil {
			out = append(out, loc)
		}
	}
	return out, nil
}

// docNameFromLocation derives a document name from the file name.
func docNameFromLocation(location string) string {
	p := strings.ReplaceAll(source.ObjectPath(location), "\\", "/")
	base := path.Base(p)
	if name := strings.TrimSuffix(base, path.Ext(base)); name != "" {
		return name
	}
	return base
}

func printReport(report *ingest.Report, location string) {
	if report == nil {
		return
	}
	if ingestFlags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(report)
		return
	}

	fmt.Println()
	fmt.Printf("%s (%s)\n", report.DocName, location)
	fmt.Printf("  Outcome: %s\n", report.Outcome)
	if report.Outcome == ingest.OutcomeFailed {
		fmt.Printf("  Stage: %s\n", report.Stage)
		fmt.Printf("  Error: %s\n", report.Error)
		return
	}
	fmt.Printf("  Records: %d\n", report.Records)
	fmt.Printf("  Chunks: %d\n", report.Chunks)
	fmt.Printf("  Duration: %s\n", report.Duration.Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Printf("  - %s chunk %d: %s\n", f.Stage, f.ChunkIndex, f.Reason)
	}
}
