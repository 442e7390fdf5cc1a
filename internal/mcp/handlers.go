package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// makeSearchHandler creates the search_qa tool handler. Validation errors
// come back as tool errors so the model can correct its arguments.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchQAInput,
) (*mcp.CallToolResult, *search.Result, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchQAInput) (
		*mcp.CallToolResult, *search.Result, error,
	) {
		result, err := searcher.Search(ctx, search.Query{
			Collection:   input.Collection,
			UploadAuthor: input.UploadAuthor,
			DocName:      input.DocName,
			Index:        input.Index,
			OrderBy:      input.OrderBy,
			Descending:   input.Descending,
			Page:         input.Page,
			PageSize:     input.PageSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("search failed: %w", err)
		}
		return nil, result, nil
	}
}

// makeSimilarHandler creates the similar_qa tool handler.
func makeSimilarHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SimilarQAInput,
) (*mcp.CallToolResult, *search.SimilarResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SimilarQAInput) (
		*mcp.CallToolResult, *search.SimilarResult, error,
	) {
		result, err := searcher.Similar(ctx, search.SimilarQuery{
			Text:         input.Query,
			UploadAuthor: input.UploadAuthor,
			DocName:      input.DocName,
			Collection:   input.Collection,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("similarity search failed: %w", err)
		}
		return nil, result, nil
	}
}

// makeIngestHandler creates the ingest_document tool handler.
// A failed run still returns its report, flagged as a tool error.
func makeIngestHandler(ingester Ingester) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, *ingest.Report, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, *ingest.Report, error,
	) {
		report, err := ingester.Run(ctx, ingest.Request{
			InputDocsPath:    input.InputDocsPath,
			UploadAuthor:     input.UploadAuthor,
			DocName:          input.DocName,
			Collection:       input.Collection,
			UpdateCollection: input.UpdateCollection,
		})
		if report == nil {
			if err == nil {
				err = errors.New("ingestion returned no report")
			}
			return nil, nil, err
		}
		if err != nil {
			return &mcp.CallToolResult{IsError: true}, report, nil
		}
		return nil, report, nil
	}
}

// makeStatusHandler creates the collection_status tool handler.
// A missing collection is reported, not treated as an error.
func makeStatusHandler(collections CollectionInspector, searcher Searcher, defaultCollection string) func(
	context.Context, *mcp.CallToolRequest, CollectionStatusInput,
) (*mcp.CallToolResult, CollectionStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CollectionStatusInput) (
		*mcp.CallToolResult, CollectionStatusOutput, error,
	) {
		name := input.Collection
		if name == "" {
			name = defaultCollection
		}
		out := CollectionStatusOutput{Collection: name}

		info, err := collections.CollectionInfo(ctx, name)
		if errors.Is(err, storage.ErrCollectionNotFound) {
			out.Message = "Collection does not exist yet. It is created on the first ingestion."
			return nil, out, nil
		}
		if err != nil {
			return nil, CollectionStatusOutput{}, fmt.Errorf("store_error: failed to get collection info: %w", err)
		}
		out.Exists = true
		out.Points = info.Points
		out.Dimension = info.Dimension

		if input.UploadAuthor != "" {
			docs, err := searcher.Documents(ctx, name, input.UploadAuthor)
			if err != nil {
				return nil, CollectionStatusOutput{}, fmt.Errorf("store_error: failed to list documents: %w", err)
			}
			out.Documents = docs
			if len(docs) == 0 {
				out.Message = fmt.Sprintf("No documents found for %q.", input.UploadAuthor)
			}
		}
		return nil, out, nil
	}
}
