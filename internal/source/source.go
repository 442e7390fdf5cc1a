// Package source resolves an input_docs_path to document bytes. Locations are
// local paths, s3://bucket/key or github://owner/repo/path[@ref].
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrSourceNotFound is returned when a location does not name a readable
// document.
var ErrSourceNotFound = errors.New("source document not found")

// Source opens the document at a location.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Lister is implemented by sources that can enumerate documents under a
// location, used for directory ingestion.
type Lister interface {
	List(ctx context.Context, location string) ([]string, error)
}

// Mux dispatches locations to sources by URL scheme. Locations without a
// scheme go to the "file" source.
type Mux struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewMux creates a mux with the local file source registered.
func NewMux() *Mux {
	m := &Mux{sources: make(map[string]Source)}
	m.Register("file", NewFileSource(""))
	return m
}

// Register binds scheme to src, replacing any previous binding.
func (m *Mux) Register(scheme string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[strings.ToLower(scheme)] = src
}

// Open routes location to the source registered for its scheme.
func (m *Mux) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	src, err := m.lookup(location)
	if err != nil {
		return nil, err
	}
	return src.Open(ctx, location)
}

// List routes location to the source registered for its scheme, when that
// source can list.
func (m *Mux) List(ctx context.Context, location string) ([]string, error) {
	src, err := m.lookup(location)
	if err != nil {
		return nil, err
	}
	lister, ok := src.(Lister)
	if !ok {
		return nil, fmt.Errorf("source for %q cannot list documents", location)
	}
	return lister.List(ctx, location)
}

func (m *Mux) lookup(location string) (Source, error) {
	scheme := Scheme(location)
	m.mu.RLock()
	src, ok := m.sources[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no source registered for scheme %q", scheme)
	}
	return src, nil
}

// Scheme returns the lowercased URL scheme of location, or "file" when it
// has none.
func Scheme(location string) string {
	if i := strings.Index(location, "://"); i > 0 {
		return strings.ToLower(location[:i])
	}
	return "file"
}

// ObjectPath returns the part of location that names the document itself,
// without scheme, bucket or ref. It is used for format detection.
func ObjectPath(location string) string {
	i := strings.Index(location, "://")
	if i < 0 {
		return location
	}
	rest := location[i+3:]
	if at := strings.LastIndex(rest, "@"); at >= 0 && !strings.Contains(rest[at:], "/") {
		rest = rest[:at]
	}
	return rest
}
