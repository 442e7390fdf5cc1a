package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryStore is an in-process VectorStore with the same semantics as the
// Qdrant adapter. Used for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	closed      bool
}

type memoryCollection struct {
	dimension int
	points    map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

var _ VectorStore = (*MemoryStore)(nil)

func (m *MemoryStore) collection(name string) (*memoryCollection, error) {
	if m.closed {
		return nil, ErrSessionClosed
	}
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// EnsureCollection creates the collection if missing.
func (m *MemoryStore) EnsureCollection(_ context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(name)
	if errors.Is(err, ErrCollectionNotFound) {
		m.collections[name] = &memoryCollection{dimension: dimension, points: make(map[string]Record)}
		return nil
	}
	if err != nil {
		return err
	}
	if c.dimension != dimension {
		return fmt.Errorf("%w: collection %s has %d dimensions, expected %d", ErrDimensionMismatch, name, c.dimension, dimension)
	}
	return nil
}

// CollectionExists reports whether the collection exists.
func (m *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.collection(name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CollectionInfo returns the point count and dimension.
func (m *MemoryStore) CollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: name, Points: uint64(len(c.points)), Dimension: c.dimension}, nil
}

// Upsert writes all records atomically.
func (m *MemoryStore) Upsert(_ context.Context, name string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(name)
	if err != nil {
		return err
	}
	for i, r := range records {
		if len(r.Vector) != c.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(r.Vector), c.dimension)
		}
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		c.points[r.ID] = r
	}
	return nil
}

// Search scans, sorts and paginates the matching records.
func (m *MemoryStore) Search(_ context.Context, name string, req SearchRequest) (*SearchPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(name)
	if err != nil {
		return nil, err
	}

	var matches []Record
	for _, r := range c.points {
		if req.Filter.Matches(r.Payload) {
			r.Vector = nil
			matches = append(matches, r)
		}
	}
	return page(matches, req), nil
}

// Query scores every matching record by cosine similarity.
func (m *MemoryStore) Query(_ context.Context, name string, vector []float32, filter Filter, limit int) ([]ScoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), c.dimension)
	}

	hits := []ScoredRecord{}
	for _, r := range c.points {
		if !filter.Matches(r.Payload) {
			continue
		}
		score := cosine(vector, r.Vector)
		r.Vector = nil
		hits = append(hits, ScoredRecord{Record: r, Score: score})
	}
	slices.SortStableFunc(hits, func(a, b ScoredRecord) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Count returns how many records match filter.
func (m *MemoryStore) Count(_ context.Context, name string, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(name)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range c.points {
		if filter.Matches(r.Payload) {
			n++
		}
	}
	return n, nil
}

// Delete removes the records matching filter.
func (m *MemoryStore) Delete(_ context.Context, name string, filter Filter) error {
	if filter.Empty() {
		return errors.New("refusing to delete with an empty filter")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(name)
	if err != nil {
		return err
	}
	for id, r := range c.points {
		if filter.Matches(r.Payload) {
			delete(c.points, id)
		}
	}
	return nil
}

// Health fails only after Close.
func (m *MemoryStore) Health(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrSessionClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
