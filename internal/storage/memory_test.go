package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	exists, err := m.CollectionExists(ctx, "qa")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.CollectionInfo(ctx, "qa")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))
	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))
	assert.ErrorIs(t, m.EnsureCollection(ctx, "qa", 4), ErrDimensionMismatch)

	require.NoError(t, m.Upsert(ctx, "qa", []Record{testRecord("handbook", 1, 3), testRecord("handbook", 2, 3)}))

	info, err := m.CollectionInfo(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Points)
	assert.Equal(t, 3, info.Dimension)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Health(ctx), ErrSessionClosed)
	_, err = m.Count(ctx, "qa", Filter{})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestMemoryStore_UpsertAtomicOnDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))

	err := m.Upsert(ctx, "qa", []Record{testRecord("handbook", 1, 3), testRecord("handbook", 2, 2)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	n, err := m.Count(ctx, "qa", Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_SearchAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))

	records := []Record{
		testRecord("b-doc", 2, 3),
		testRecord("a-doc", 1, 3),
		testRecord("b-doc", 1, 3),
	}
	bob := testRecord("a-doc", 1, 3)
	bob.ID = RecordID("qa", "bob", "a-doc", "run-1", 1)
	bob.Payload.UploadAuthor = "bob"
	records = append(records, bob)
	require.NoError(t, m.Upsert(ctx, "qa", records))

	page, err := m.Search(ctx, "qa", SearchRequest{
		Filter:  Filter{UploadAuthor: "alice"},
		OrderBy: OrderByDocName,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Records, 3)
	assert.Equal(t, "a-doc", page.Records[0].Payload.DocName)
	assert.Equal(t, "b-doc", page.Records[1].Payload.DocName)
	assert.Equal(t, 1, page.Records[1].Payload.IndexID)
	assert.Equal(t, 2, page.Records[2].Payload.IndexID)
	assert.Nil(t, page.Records[0].Vector)

	assert.Error(t, m.Delete(ctx, "qa", Filter{}))
	require.NoError(t, m.Delete(ctx, "qa", Filter{UploadAuthor: "alice", DocName: "b-doc"}))

	n, err := m.Count(ctx, "qa", Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))

	near := testRecord("handbook", 1, 3)
	mid := testRecord("handbook", 2, 3)
	mid.Vector = []float32{1, 1, 0}
	far := testRecord("handbook", 3, 3)
	far.Vector = []float32{0, 0, 1}
	require.NoError(t, m.Upsert(ctx, "qa", []Record{far, mid, near, testRecord("other", 1, 3)}))

	hits, err := m.Query(ctx, "qa", []float32{2, 0, 0}, Filter{DocName: "handbook"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{near.ID, mid.ID, far.ID}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-4)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)
	assert.Nil(t, hits[0].Vector)

	hits, err = m.Query(ctx, "qa", []float32{1, 0, 0}, Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = m.Query(ctx, "qa", []float32{1, 0}, Filter{}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = m.Query(ctx, "missing", []float32{1, 0, 0}, Filter{}, 2)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestMemoryStore_SearchLatestOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, "qa", 3))

	old1, old2 := testRecord("handbook", 1, 3), testRecord("handbook", 2, 3)
	fresh := testRecord("handbook", 1, 3)
	fresh.Payload.IngestionID = "run-2"
	fresh.Payload.IngestedAt = old1.Payload.IngestedAt.Add(time.Minute)
	fresh.ID = RecordID("qa", "alice", "handbook", "run-2", 1)
	other := testRecord("other", 1, 3)
	require.NoError(t, m.Upsert(ctx, "qa", []Record{old1, old2, fresh, other}))

	all, err := m.Search(ctx, "qa", SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)

	latest, err := m.Search(ctx, "qa", SearchRequest{LatestOnly: true, OrderBy: OrderByDocName})
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Total)
	assert.Equal(t, []string{fresh.ID, other.ID}, ids(latest.Records))
}

func TestLatestIngestion_TieBrokenByRunID(t *testing.T) {
	a := testRecord("handbook", 1, 3)
	b := testRecord("handbook", 1, 3)
	b.Payload.IngestionID = "run-0"

	got := LatestIngestion([]Record{b, a}, func(r Record) Payload { return r.Payload })
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].Payload.IngestionID)
}

func TestFilter_Matches(t *testing.T) {
	p := Payload{UploadAuthor: "alice", DocName: "handbook", IndexID: 4, IngestionID: "run-1"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"author", Filter{UploadAuthor: "alice"}, true},
		{"other author", Filter{UploadAuthor: "bob"}, false},
		{"doc and index", Filter{DocName: "handbook", IndexID: 4}, true},
		{"other index", Filter{IndexID: 5}, false},
		{"ingestion", Filter{IngestionID: "run-1"}, true},
		{"excluded ingestion", Filter{ExcludeIngestionID: "run-1"}, false},
		{"other excluded ingestion", Filter{ExcludeIngestionID: "run-2"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(p))
		})
	}
	assert.True(t, Filter{}.Empty())
	assert.False(t, Filter{IndexID: 1}.Empty())
}

func TestSortRecords(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "c", Payload: Payload{DocName: "b", IndexID: 1, IngestedAt: t0.Add(time.Hour)}},
		{ID: "a", Payload: Payload{DocName: "a", IndexID: 2, IngestedAt: t0}},
		{ID: "b", Payload: Payload{DocName: "a", IndexID: 1, IngestedAt: t0}},
	}

	SortRecords(records, OrderByIndexID, false)
	assert.Equal(t, []string{"b", "c", "a"}, ids(records))

	SortRecords(records, OrderByDocName, false)
	assert.Equal(t, []string{"b", "a", "c"}, ids(records))

	SortRecords(records, OrderByIngestedAt, true)
	assert.Equal(t, []string{"c", "a", "b"}, ids(records))
}

func TestPaginate(t *testing.T) {
	records := []Record{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	assert.Equal(t, []string{"2", "3"}, ids(Paginate(records, 1, 5)))
	assert.Equal(t, []string{"1"}, ids(Paginate(records, 0, 1)))
	assert.Equal(t, []string{"1", "2", "3"}, ids(Paginate(records, 0, 0)))
	assert.Empty(t, Paginate(records, 3, 1))
	assert.NotNil(t, Paginate(records, 10, 1))
}

func TestRecordID_Stable(t *testing.T) {
	a := RecordID("qa", "alice", "handbook", "run-1", 1)
	assert.Equal(t, a, RecordID("qa", "alice", "handbook", "run-1", 1))
	assert.NotEqual(t, a, RecordID("qa", "alice", "handbook", "run-2", 1))
	assert.NotEqual(t, a, RecordID("qa", "alice", "handbook", "run-1", 2))
	assert.Len(t, a, 36)
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
