package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

const collection = "qa"

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// seed writes n records for (author, doc) with index_id 1..n.
func seed(t *testing.T, store *storage.MemoryStore, author, doc string, n int, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, collection, 2))

	records := make([]storage.Record, n)
	for i := range records {
		idx := i + 1
		records[i] = storage.Record{
			ID:     storage.RecordID(collection, author, doc, "run-"+doc, idx),
			Vector: []float32{1, 0},
			Payload: storage.Payload{
				Question:     fmt.Sprintf("%s question %d", doc, idx),
				Answer:       fmt.Sprintf("%s answer %d", doc, idx),
				DocName:      doc,
				UploadAuthor: author,
				Collection:   collection,
				IndexID:      idx,
				IngestedAt:   at,
				IngestionID:  "run-" + doc,
			},
		}
	}
	require.NoError(t, store.Upsert(ctx, collection, records))
}

func newEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewEngine(store, collection, nil), store
}

func indexes(items []Item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.IndexID
	}
	return out
}

func intPtr(n int) *int { return &n }

func TestSearchByDocument(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "guide", 3, base)
	seed(t, store, "ada", "manual", 2, base)
	seed(t, store, "bob", "guide", 4, base)

	res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", DocName: "guide"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []int{1, 2, 3}, indexes(res.Items))
	assert.Equal(t, []string{"guide"}, res.Documents)
	assert.Equal(t, DefaultPage, res.Page)
	assert.Equal(t, DefaultPageSize, res.PageSize)
	assert.Equal(t, collection, res.Collection)

	first := res.Items[0]
	assert.Equal(t, "guide question 1", first.Question)
	assert.Equal(t, "guide answer 1", first.Answer)
	assert.Equal(t, "ada", first.UploadAuthor)
	assert.True(t, first.IngestedAt.Equal(base))
}

func TestSearchAllDocumentsOfAuthor(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "manual", 2, base)
	seed(t, store, "ada", "guide", 2, base)
	seed(t, store, "bob", "notes", 1, base)

	res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", OrderBy: "doc_name"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, []string{"guide", "manual"}, res.Documents)

	var docs []string
	for _, it := range res.Items {
		docs = append(docs, it.DocName)
	}
	assert.Equal(t, []string{"guide", "guide", "manual", "manual"}, docs)
}

func TestSearchSingleIndex(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "guide", 5, base)

	res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", DocName: "guide", Index: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, []int{4}, indexes(res.Items))
}

func TestSearchIndexOutOfRange(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "guide", 2, base)

	res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", DocName: "guide", Index: intPtr(99)})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Documents)
}

func TestSearchPagination(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "guide", 7, base)

	tests := []struct {
		name string
		page int
		size int
		want []int
	}{
		{"first page", 1, 3, []int{1, 2, 3}},
		{"middle page", 2, 3, []int{4, 5, 6}},
		{"last partial page", 3, 3, []int{7}},
		{"past the end", 4, 3, []int{}},
		{"defaults", 0, 0, []int{1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Search(context.Background(), Query{
				UploadAuthor: "ada",
				DocName:      "guide",
				Page:         tt.page,
				PageSize:     tt.size,
			})
			require.NoError(t, err)
			assert.Equal(t, 7, res.Total)
			assert.Equal(t, tt.want, indexes(res.Items))
		})
	}
}

func TestSearchOrdering(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "older", 2, base)
	seed(t, store, "ada", "newer", 2, base.Add(time.Hour))

	t.Run("index descending", func(t *testing.T) {
		res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", DocName: "older", Descending: true})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1}, indexes(res.Items))
	})

	for _, key := range []string{"ingestion_timestamp", "time_stamp"} {
		t.Run(key, func(t *testing.T) {
			res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", OrderBy: key, Descending: true})
			require.NoError(t, err)
			require.Len(t, res.Items, 4)
			assert.Equal(t, "newer", res.Items[0].DocName)
			assert.Equal(t, "older", res.Items[3].DocName)
		})
	}
}

func TestSearchMissingCollection(t *testing.T) {
	engine, _ := newEngine(t)

	res, err := engine.Search(context.Background(), Query{UploadAuthor: "ada", Collection: "nowhere"})
	require.NoError(t, err)
	assert.Equal(t, "nowhere", res.Collection)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)
}

func TestSearchValidation(t *testing.T) {
	engine, _ := newEngine(t)

	tests := []struct {
		name  string
		query Query
		field string
	}{
		{"missing author", Query{}, "upload_author"},
		{"blank author", Query{UploadAuthor: "   "}, "upload_author"},
		{"zero index", Query{UploadAuthor: "ada", Index: intPtr(0)}, "index"},
		{"unknown order", Query{UploadAuthor: "ada", OrderBy: "question"}, "order_by"},
		{"negative page", Query{UploadAuthor: "ada", Page: -1}, "page"},
		{"page size too large", Query{UploadAuthor: "ada", PageSize: MaxPageSize + 1}, "page_size"},
		{"negative page size", Query{UploadAuthor: "ada", PageSize: -5}, "page_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Search(context.Background(), tt.query)
			require.ErrorIs(t, err, ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) Search(context.Context, string, storage.SearchRequest) (*storage.SearchPage, error) {
	return nil, fmt.Errorf("%w: connection refused", storage.ErrStoreConnection)
}

func TestSearchStoreError(t *testing.T) {
	engine := NewEngine(brokenStore{storage.NewMemoryStore()}, collection, nil)

	_, err := engine.Search(context.Background(), Query{UploadAuthor: "ada"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrStoreConnection))
}

func TestDocuments(t *testing.T) {
	engine, store := newEngine(t)
	seed(t, store, "ada", "b-doc", 3, base)
	seed(t, store, "ada", "a-doc", 1, base)
	seed(t, store, "bob", "c-doc", 1, base)

	docs, err := engine.Documents(context.Background(), "", "ada")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-doc", "b-doc"}, docs)

	docs, err = engine.Documents(context.Background(), "missing", "ada")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
