package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/HlhDataScience/DocsIngestionApi/internal/document"
	"github.com/HlhDataScience/DocsIngestionApi/internal/embedding"
	"github.com/HlhDataScience/DocsIngestionApi/internal/ingest"
	"github.com/HlhDataScience/DocsIngestionApi/internal/search"
	"github.com/HlhDataScience/DocsIngestionApi/internal/source"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrCollectionNotFound), errors.Is(err, source.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrDuplicateIngestion):
		return http.StatusConflict
	case errors.Is(err, document.ErrUnsupportedFormat), errors.Is(err, document.ErrCorruptDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrSimilarityUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, storage.ErrStoreAuth):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrStoreConnection),
		errors.Is(err, storage.ErrSessionClosed),
		errors.Is(err, embedding.ErrEmbeddingProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
