package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

const testCollection = "qa"

type fakeIngester struct {
	got    ingest.Request
	report *ingest.Report
	err    error
}

func (f *fakeIngester) Run(_ context.Context, req ingest.Request) (*ingest.Report, error) {
	f.got = req
	return f.report, f.err
}

func seedStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(ctx, testCollection, 2))

	var records []storage.Record
	for i := 1; i <= 3; i++ {
		records = append(records, storage.Record{
			ID:     storage.RecordID(testCollection, "ada", "guide", "run-1", i),
			Vector: []float32{0, 1},
			Payload: storage.Payload{
				Question:     fmt.Sprintf("Question %d?", i),
				Answer:       fmt.Sprintf("Answer %d.", i),
				DocName:      "guide",
				UploadAuthor: "ada",
				Collection:   testCollection,
				IndexID:      i,
				IngestedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				IngestionID:  "run-1",
			},
		})
	}
	require.NoError(t, store.Upsert(ctx, testCollection, records))
	return store
}

// connect starts the server on in-memory transports and returns a client session.
func connect(t *testing.T, cfg *Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewServer(cfg)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func newTestConfig(t *testing.T, ingester *fakeIngester) *Config {
	store := seedStore(t)
	return &Config{
		Ingester:          ingester,
		Searcher:          search.NewEngine(store, testCollection, nil, search.WithEmbedder(embedding.NewHashEmbedder(2))),
		Collections:       store,
		DefaultCollection: testCollection,
	}
}

// callTool calls a tool and decodes its text content into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	if out != nil && !res.IsError {
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return res
}

func TestListTools(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_qa", "similar_qa", "ingest_document", "collection_status"}, names)
}

func TestSearchTool(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	var result search.Result
	res := callTool(t, session, "search_qa", map[string]any{
		"upload_author": "ada",
		"doc_name":      "guide",
		"page_size":     2,
	}, &result)

	require.False(t, res.IsError)
	assert.Equal(t, 3, result.Total)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Question 1?", result.Items[0].Question)
	assert.Equal(t, []string{"guide"}, result.Documents)
}

func TestSimilarTool(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	var result search.SimilarResult
	res := callTool(t, session, "similar_qa", map[string]any{
		"q":             "Question 2?",
		"upload_author": "ada",
		"limit":         2,
	}, &result)

	require.False(t, res.IsError)
	assert.Equal(t, testCollection, result.Collection)
	assert.Equal(t, "Question 2?", result.Query)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "guide", result.Hits[0].DocName)
	assert.GreaterOrEqual(t, result.Hits[0].Score, result.Hits[1].Score)
}

func TestSimilarToolEmptyQuery(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	res := callTool(t, session, "similar_qa", map[string]any{"q": "  "}, nil)
	assert.True(t, res.IsError)
}

func TestSearchToolInvalidQuery(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	res := callTool(t, session, "search_qa", map[string]any{
		"upload_author": "ada",
		"order_by":      "answer",
	}, nil)

	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "invalid search query")
}

func TestIngestTool(t *testing.T) {
	ingester := &fakeIngester{report: &ingest.Report{
		IngestionID: "run-2",
		Outcome:     ingest.OutcomeCompleted,
		Collection:  testCollection,
		DocName:     "manual",
		Records:     4,
		Chunks:      2,
		Failures:    []ingest.Failure{},
	}}
	session := connect(t, newTestConfig(t, ingester))

	var report ingest.Report
	res := callTool(t, session, "ingest_document", map[string]any{
		"input_docs_path":   "s3://docs/manual.pdf",
		"upload_author":     "ada",
		"doc_name":          "manual",
		"update_collection": true,
	}, &report)

	require.False(t, res.IsError)
	assert.Equal(t, ingest.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 4, report.Records)

	assert.Equal(t, "s3://docs/manual.pdf", ingester.got.InputDocsPath)
	assert.Equal(t, "manual", ingester.got.DocName)
	assert.True(t, ingester.got.UpdateCollection)
}

func TestIngestToolFailedRunKeepsReport(t *testing.T) {
	ingester := &fakeIngester{
		report: &ingest.Report{
			IngestionID: "run-3",
			Outcome:     ingest.OutcomeFailed,
			Stage:       ingest.StagePreflight,
			Failures:    []ingest.Failure{},
			Error:       "duplicate ingestion",
		},
		err: &ingest.StageError{Stage: ingest.StagePreflight, Err: ingest.ErrDuplicateIngestion},
	}
	session := connect(t, newTestConfig(t, ingester))

	res := callTool(t, session, "ingest_document", map[string]any{
		"input_docs_path": "guide.md",
		"upload_author":   "ada",
		"doc_name":        "guide",
	}, nil)

	assert.True(t, res.IsError)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, `"outcome":"Failed"`)
	assert.Contains(t, text, `"stage":"Preflight"`)
}

func TestCollectionStatusTool(t *testing.T) {
	session := connect(t, newTestConfig(t, &fakeIngester{}))

	t.Run("existing", func(t *testing.T) {
		var out CollectionStatusOutput
		callTool(t, session, "collection_status", map[string]any{"upload_author": "ada"}, &out)

		assert.True(t, out.Exists)
		assert.Equal(t, testCollection, out.Collection)
		assert.Equal(t, uint64(3), out.Points)
		assert.Equal(t, 2, out.Dimension)
		assert.Equal(t, []string{"guide"}, out.Documents)
	})

	t.Run("missing", func(t *testing.T) {
		var out CollectionStatusOutput
		res := callTool(t, session, "collection_status", map[string]any{"collection": "nowhere"}, &out)

		assert.False(t, res.IsError)
		assert.False(t, out.Exists)
		assert.NotEmpty(t, out.Message)
	})
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"unhealthy", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(healthFunc(func(context.Context) error { return tt.err }))

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestLandingHandler(t *testing.T) {
	handler := NewLandingHandler()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/uploadocs")

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
