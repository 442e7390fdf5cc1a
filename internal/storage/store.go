package storage

import "context"

// VectorStore persists Q&A records and serves filtered, ordered scans and
// similarity queries.
// Implementations are safe for concurrent use.
type VectorStore interface {
	// EnsureCollection creates the collection if missing. An existing
	// collection with another dimension yields ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Upsert writes records in batches. Every vector must match the
	// collection dimension or nothing is written. A failed batch returns
	// *UpsertError listing the ids not written.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Search returns the page of matching records described by req.
	Search(ctx context.Context, collection string, req SearchRequest) (*SearchPage, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)

	// Query returns up to limit records matching filter, nearest to vector
	// by cosine similarity, best first.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredRecord, error)

	// Delete removes every record matching filter, which must not be empty.
	Delete(ctx context.Context, collection string, filter Filter) error

	Health(ctx context.Context) error
	Close() error
}
