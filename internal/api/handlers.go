package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
)

// maxRequestBody bounds the JSON body of POST /uploadocs.
const maxRequestBody = 1 << 20

// Ingester runs one document through the ingestion graph.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Report, error)
}

// Searcher answers structured and similarity Q&A lookups.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
	Similar(ctx context.Context, q search.SimilarQuery) (*search.SimilarResult, error)
}

// Handlers serves the REST endpoints.
type Handlers struct {
	ingester Ingester
	searcher Searcher
	logger   *slog.Logger
}

// NewHandlers creates the REST handlers.
func NewHandlers(ingester Ingester, searcher Searcher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{ingester: ingester, searcher: searcher, logger: logger}
}

// UploadDocs handles POST /uploadocs. The ingestion report is returned for
// every outcome; failed runs carry the status of their cause.
func (h *Handlers) UploadDocs(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	report, err := h.ingester.Run(r.Context(), req)
	if report == nil {
		if err == nil {
			err = errors.New("ingestion returned no report")
		}
		h.logger.Error("Ingestion produced no report", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err != nil {
		writeJSON(w, statusFor(err), report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Search handles GET /search.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Search failed", "upload_author", q.UploadAuthor, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Similar handles GET /search/similar.
func (h *Handlers) Similar(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, err := intParam(values, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := search.SimilarQuery{
		Text:         values.Get("q"),
		UploadAuthor: values.Get("upload_author"),
		DocName:      values.Get("doc_name"),
		Collection:   values.Get("collection"),
		Limit:        limit,
	}

	result, err := h.searcher.Similar(r.Context(), q)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Similarity search failed", "collection", q.Collection, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseQuery reads search parameters. Range checks are left to the engine.
func parseQuery(values url.Values) (search.Query, error) {
	q := search.Query{
		UploadAuthor: values.Get("upload_author"),
		DocName:      values.Get("doc_name"),
		OrderBy:      values.Get("order_by"),
		Collection:   values.Get("collection"),
	}

	var err error
	if v := strings.TrimSpace(values.Get("index")); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return q, fmt.Errorf("%w: index: not an integer", search.ErrInvalidQuery)
		}
		q.Index = &n
	}
	if q.Page, err = intParam(values, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(values, "page_size"); err != nil {
		return q, err
	}
	if v := values.Get("descending"); v != "" {
		if q.Descending, err = strconv.ParseBool(v); err != nil {
			return q, fmt.Errorf("%w: descending: not a boolean", search.ErrInvalidQuery)
		}
	}
	return q, nil
}

func intParam(values url.Values, key string) (int, error) {
	v := strings.TrimSpace(values.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: not an integer", search.ErrInvalidQuery, key)
	}
	return n, nil
}
