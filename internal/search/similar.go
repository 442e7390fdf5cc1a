package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// SimilarQuery finds the stored questions closest to Text. Author and
// document narrow the candidates when set.
type SimilarQuery struct {
	Collection   string `json:"collection" validate:"omitempty,max=255"`
	UploadAuthor string `json:"upload_author"`
	DocName      string `json:"doc_name"`
	Text         string `json:"q" validate:"required,max=2000"`
	Limit        int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// Hit is one similarity match, best first.
type Hit struct {
	Score        float64   `json:"score"`
	IndexID      int       `json:"index_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	DocName      string    `json:"doc_name"`
	UploadAuthor string    `json:"upload_author"`
	IngestedAt   time.Time `json:"ingestion_timestamp"`
}

// SimilarResult holds the hits of a SimilarQuery.
type SimilarResult struct {
	Collection   string `json:"collection"`
	Query        string `json:"q"`
	UploadAuthor string `json:"upload_author,omitempty"`
	DocName      string `json:"doc_name,omitempty"`
	Hits         []Hit  `json:"hits"`
}

// Similar embeds q.Text and returns the nearest records by cosine
// similarity. A missing collection yields no hits.
func (e *Engine) Similar(ctx context.Context, q SimilarQuery) (*SimilarResult, error) {
	if e.embedder == nil {
		return nil, ErrSimilarityUnavailable
	}

	q.Collection = strings.TrimSpace(q.Collection)
	q.UploadAuthor = strings.TrimSpace(q.UploadAuthor)
	q.DocName = strings.TrimSpace(q.DocName)
	q.Text = strings.TrimSpace(q.Text)
	if err := e.validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, describe(err))
	}
	if q.Collection == "" {
		q.Collection = e.defaultCollection
	}
	if q.Limit == 0 {
		q.Limit = DefaultSimilarLimit
	}

	result := &SimilarResult{
		Collection:   q.Collection,
		Query:        q.Text,
		UploadAuthor: q.UploadAuthor,
		DocName:      q.DocName,
		Hits:         []Hit{},
	}

	vectors, err := e.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: provider returned %d vectors", len(vectors))
	}

	filter := storage.Filter{UploadAuthor: q.UploadAuthor, DocName: q.DocName}
	scored, err := e.store.Query(ctx, q.Collection, vectors[0], filter, q.Limit)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		e.logger.Debug("Similarity search on missing collection", "collection", q.Collection)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	scored = storage.LatestIngestion(scored, func(r storage.ScoredRecord) storage.Payload { return r.Payload })
	for _, r := range scored {
		item := itemOf(r.Payload)
		result.Hits = append(result.Hits, Hit{
			Score:        r.Score,
			IndexID:      item.IndexID,
			Question:     item.Question,
			Answer:       item.Answer,
			DocName:      item.DocName,
			UploadAuthor: item.UploadAuthor,
			IngestedAt:   item.IngestedAt,
		})
	}
	return result, nil
}
