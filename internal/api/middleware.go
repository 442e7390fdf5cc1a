package api

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the client key.
const APIKeyHeader = "X-API-KEY"

// ErrInvalidKeyHash is returned for configured hashes that are not bcrypt.
var ErrInvalidKeyHash = errors.New("invalid api key hash")

// HashAPIKey returns the bcrypt hash to configure for key.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("api key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// KeyVerifier checks API keys against bcrypt hashes. Keys that verified once
// are remembered by digest so bcrypt runs once per key.
type KeyVerifier struct {
	hashes [][]byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewKeyVerifier validates every hash up front. With no hashes the verifier
// is disabled and accepts every request.
func NewKeyVerifier(hashes []string) (*KeyVerifier, error) {
	v := &KeyVerifier{verified: make(map[[sha256.Size]byte]struct{})}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidKeyHash, i, err)
		}
		v.hashes = append(v.hashes, []byte(h))
	}
	return v, nil
}

// Enabled reports whether keys are checked at all.
func (v *KeyVerifier) Enabled() bool {
	return len(v.hashes) > 0
}

// Verify reports whether key matches one of the configured hashes.
func (v *KeyVerifier) Verify(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			v.mu.Lock()
			v.verified[digest] = struct{}{}
			v.mu.Unlock()
			return true
		}
	}
	return false
}

// RequireAPIKey rejects requests without a valid X-API-KEY header.
func RequireAPIKey(v *KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Verify(r.Header.Get(APIKeyHeader)) {
				writeError(w, http.StatusUnauthorized, "missing or invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deadline bounds the request context by d. Handlers map an expired
// deadline to 504 themselves, so nothing is written here.
func Deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs one line per request with slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
