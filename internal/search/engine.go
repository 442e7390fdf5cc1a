// Package search answers structured and similarity lookups over ingested
// Q&A records.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 500

	DefaultSimilarLimit = 10
	MaxSimilarLimit     = 100
)

var (
	// ErrInvalidQuery is returned when query parameters fail validation.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrSimilarityUnavailable is returned by Similar on an engine built
	// without an embedding provider.
	ErrSimilarityUnavailable = errors.New("similarity search is not configured")
)

// Query selects records of one author, optionally narrowed to a document and
// a single index_id.
type Query struct {
	Collection   string `json:"collection" validate:"omitempty,max=255"`
	UploadAuthor string `json:"upload_author" validate:"required"`
	DocName      string `json:"doc_name"`
	Index        *int   `json:"index" validate:"omitempty,min=1"`
	OrderBy      string `json:"order_by" validate:"omitempty,oneof=index_id doc_name ingestion_timestamp time_stamp"`
	Descending   bool   `json:"descending"`
	Page         int    `json:"page" validate:"omitempty,min=1"`
	PageSize     int    `json:"page_size" validate:"omitempty,min=1,max=500"`
}

// Item is one record as exposed to callers. Store ids are never included.
type Item struct {
	IndexID      int       `json:"index_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	DocName      string    `json:"doc_name"`
	UploadAuthor string    `json:"upload_author"`
	IngestedAt   time.Time `json:"ingestion_timestamp"`
}

// Result is one page of matches.
type Result struct {
	Collection   string   `json:"collection"`
	UploadAuthor string   `json:"upload_author"`
	DocName      string   `json:"doc_name,omitempty"`
	Documents    []string `json:"documents"`
	Total        int      `json:"total"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
	Items        []Item   `json:"items"`
}

// Engine runs queries against a vector store.
type Engine struct {
	store             storage.VectorStore
	embedder          embedding.Provider
	defaultCollection string
	validate          *validator.Validate
	logger            *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables Similar. The provider must be the one records were
// ingested with.
func WithEmbedder(p embedding.Provider) Option {
	return func(e *Engine) {
		e.embedder = p
	}
}

// NewEngine creates an engine. Queries without a collection use
// defaultCollection.
func NewEngine(store storage.VectorStore, defaultCollection string, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})

	e := &Engine{
		store:             store,
		defaultCollection: defaultCollection,
		validate:          v,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search validates q and returns the requested page. A missing collection
// or an index beyond the stored range yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	q, err := e.normalize(q)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Collection:   q.Collection,
		UploadAuthor: q.UploadAuthor,
		DocName:      q.DocName,
		Documents:    []string{},
		Page:         q.Page,
		PageSize:     q.PageSize,
		Items:        []Item{},
	}

	filter := storage.Filter{
		UploadAuthor: q.UploadAuthor,
		DocName:      q.DocName,
	}
	if q.Index != nil {
		filter.IndexID = *q.Index
	}

	page, err := e.store.Search(ctx, q.Collection, storage.SearchRequest{
		Filter:     filter,
		OrderBy:    storage.OrderBy(q.OrderBy),
		Descending: q.Descending,
		Limit:      q.PageSize,
		Offset:     (q.Page - 1) * q.PageSize,
		LatestOnly: true,
	})
	if errors.Is(err, storage.ErrCollectionNotFound) {
		e.logger.Debug("Search on missing collection", "collection", q.Collection)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Collection, err)
	}

	result.Total = page.Total
	for _, r := range page.Records {
		result.Items = append(result.Items, itemOf(r.Payload))
	}

	switch {
	case page.Total == 0:
	case q.DocName != "":
		result.Documents = []string{q.DocName}
	default:
		docs, err := e.Documents(ctx, q.Collection, q.UploadAuthor)
		if err != nil {
			return nil, err
		}
		result.Documents = docs
	}

	return result, nil
}

// Documents lists the distinct document names of an author, sorted.
func (e *Engine) Documents(ctx context.Context, collection, uploadAuthor string) ([]string, error) {
	if collection == "" {
		collection = e.defaultCollection
	}

	page, err := e.store.Search(ctx, collection, storage.SearchRequest{
		Filter:  storage.Filter{UploadAuthor: uploadAuthor},
		OrderBy: storage.OrderByDocName,
	})
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := []string{}
	for _, r := range page.Records {
		if n := len(docs); n == 0 || docs[n-1] != r.Payload.DocName {
			docs = append(docs, r.Payload.DocName)
		}
	}
	return docs, nil
}

func itemOf(p storage.Payload) Item {
	return Item{
		IndexID:      p.IndexID,
		Question:     p.Question,
		Answer:       p.Answer,
		DocName:      p.DocName,
		UploadAuthor: p.UploadAuthor,
		IngestedAt:   p.IngestedAt,
	}
}

// normalize validates q and fills defaults.
func (e *Engine) normalize(q Query) (Query, error) {
	q.UploadAuthor = strings.TrimSpace(q.UploadAuthor)
	q.DocName = strings.TrimSpace(q.DocName)
	q.Collection = strings.TrimSpace(q.Collection)
	q.OrderBy = strings.TrimSpace(q.OrderBy)

	if err := e.validate.Struct(q); err != nil {
		return q, fmt.Errorf("%w: %s", ErrInvalidQuery, describe(err))
	}

	if q.Collection == "" {
		q.Collection = e.defaultCollection
	}
	switch q.OrderBy {
	case "":
		q.OrderBy = string(storage.OrderByIndexID)
	case "time_stamp":
		q.OrderBy = string(storage.OrderByIngestedAt)
	}
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	return q, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
