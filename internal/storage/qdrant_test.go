//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStorage connects to a local Qdrant and creates a throwaway
// collection. Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T) (*QdrantStorage, string) {
	t.Helper()
	storage := NewQdrantStorage(QdrantConfig{Host: "localhost", Port: 6334})
	t.Cleanup(func() { _ = storage.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := storage.Health(ctx); err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	collection := "it_" + uuid.NewString()[:8]
	require.NoError(t, storage.EnsureCollection(context.Background(), collection, 4), "Failed to ensure collection")
	return storage, collection
}

func TestRecordRoundTrip(t *testing.T) {
	storage, collection := setupTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second) // Truncate to avoid microsecond precision issues
	record := Record{
		ID:     RecordID(collection, "alice", "handbook.md", "run-1", 1),
		Vector: []float32{0.1, 0.2, 0.3, 0.4},
		Payload: Payload{
			Question:     "What does the handbook cover?",
			Answer:       "Onboarding.",
			DocName:      "handbook.md",
			UploadAuthor: "alice",
			Collection:   collection,
			IndexID:      1,
			IngestedAt:   now,
			Source:       "docs/handbook.md",
			Category:     DefaultCategory,
			IngestionID:  "run-1",
		},
	}

	require.NoError(t, storage.Upsert(ctx, collection, []Record{record}))

	page, err := storage.Search(ctx, collection, SearchRequest{
		Filter:  Filter{UploadAuthor: "alice", DocName: "handbook.md"},
		OrderBy: OrderByIndexID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	got := page.Records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Payload.Question, got.Payload.Question)
	assert.Equal(t, record.Payload.Source, got.Payload.Source)
	assert.True(t, now.Equal(got.Payload.IngestedAt), "timestamp mismatch")
}

func TestUpsertIdempotent(t *testing.T) {
	storage, collection := setupTestStorage(t)
	ctx := context.Background()

	record := Record{
		ID:      RecordID(collection, "alice", "handbook.md", "run-1", 1),
		Vector:  []float32{1, 0, 0, 0},
		Payload: Payload{Question: "Q", Answer: "A", DocName: "handbook.md", UploadAuthor: "alice", IndexID: 1, IngestionID: "run-1"},
	}

	require.NoError(t, storage.Upsert(ctx, collection, []Record{record}))
	require.NoError(t, storage.Upsert(ctx, collection, []Record{record}))

	n, err := storage.Count(ctx, collection, Filter{DocName: "handbook.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "same ID upserts once")
}

func TestDeleteByIngestion(t *testing.T) {
	storage, collection := setupTestStorage(t)
	ctx := context.Background()

	var records []Record
	for i, run := range []string{"run-1", "run-1", "run-2"} {
		records = append(records, Record{
			ID:      RecordID(collection, "alice", "handbook.md", run, i+1),
			Vector:  []float32{1, 0, 0, float32(i)},
			Payload: Payload{Question: "Q", Answer: "A", DocName: "handbook.md", UploadAuthor: "alice", IndexID: i + 1, IngestionID: run},
		})
	}
	require.NoError(t, storage.Upsert(ctx, collection, records))

	require.NoError(t, storage.Delete(ctx, collection, Filter{DocName: "handbook.md", ExcludeIngestionID: "run-2"}))

	n, err := storage.Count(ctx, collection, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnsureCollectionDimensionMismatch(t *testing.T) {
	storage, collection := setupTestStorage(t)
	err := storage.EnsureCollection(context.Background(), collection, 8)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
