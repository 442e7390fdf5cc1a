package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// upsertBatchSize is the number of points sent per upsert request.
	upsertBatchSize = 100

	// scrollPageSize is the number of points fetched per scroll request.
	scrollPageSize = 256

	// maxAttempts bounds calls retried after a connection error.
	maxAttempts = 3
)

// pointsAPI is the subset of *qdrant.Client used by QdrantStorage.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantConfig holds the connection settings.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStorage implements VectorStore on Qdrant. The gRPC client is created
// on first use and shared by all callers until Close.
type QdrantStorage struct {
	mu      sync.Mutex
	factory func() (pointsAPI, error)
	client  pointsAPI
	closed  bool

	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

var _ VectorStore = (*QdrantStorage)(nil)

// NewQdrantStorage returns a store that connects lazily. No network call is
// made until the first operation.
func NewQdrantStorage(cfg QdrantConfig) *QdrantStorage {
	return newQdrantStorage(func() (pointsAPI, error) {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:                   cfg.Host,
			Port:                   cfg.Port,
			APIKey:                 cfg.APIKey,
			UseTLS:                 cfg.UseTLS,
			SkipCompatibilityCheck: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant client: %w", err)
		}
		return client, nil
	})
}

func newQdrantStorage(factory func() (pointsAPI, error)) *QdrantStorage {
	return &QdrantStorage{
		factory:    factory,
		newBackOff: defaultBackOff,
		logger:     slog.Default().With("component", "qdrant"),
	}
}

// defaultBackOff retries a failed call twice.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func defaultBackOff() backoff.BackOff {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(exponentialBackoff, maxAttempts-1)
}

// session returns the shared client, creating it on first use.
func (s *QdrantStorage) session() (pointsAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.client == nil {
		client, err := s.factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreConnection, err)
		}
		s.client = client
		s.logger.Debug("Qdrant session opened")
	}
	return s.client, nil
}

// call runs op against the session, retrying connection errors with
// exponential backoff. Other errors are permanent.
func (s *QdrantStorage) call(ctx context.Context, name string, op func(api pointsAPI) error) error {
	operation := func() error {
		api, err := s.session()
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return backoff.Permanent(err)
			}
			return err
		}

		err = classify(op(api))
		if err == nil {
			return nil
		}
		if retryable(err) {
			s.logger.Warn("Qdrant call failed, retrying", "op", name, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(s.newBackOff(), ctx))
}

// Health performs a single health check against Qdrant.
// Returns nil if Qdrant is healthy, error otherwise.
func (s *QdrantStorage) Health(ctx context.Context) error {
	api, err := s.session()
	if err != nil {
		return err
	}

	result, err := api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", classify(err))
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// WaitHealthy performs health checks with exponential backoff until Qdrant
// answers or the backoff gives up. Used at server startup to fail fast.
func (s *QdrantStorage) WaitHealthy(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		err := s.Health(ctx)
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrStoreAuth) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// EnsureCollection ensures the collection exists with dimension-sized
// vectors (cosine distance) and payload indexes.
// Idempotent - safe to call multiple times.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		err = s.call(ctx, "CreateCollection", func(api pointsAPI) error {
			return api.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		switch {
		case status.Code(err) == codes.AlreadyExists:
			// Created concurrently by another request; fall through to the dimension check
		case err != nil:
			return fmt.Errorf("failed to create collection: %w", err)
		default:
			if err := s.createPayloadIndexes(ctx, collection); err != nil {
				return fmt.Errorf("failed to create payload indexes: %w", err)
			}
			s.logger.Info("Created collection", "collection", collection, "dimension", dimension)
			return nil
		}
	}

	actual, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if actual != dimension {
		return fmt.Errorf("%w: collection %s has %d dimensions, expected %d",
			ErrDimensionMismatch, collection, actual, dimension)
	}
	return nil
}

// createPayloadIndexes creates indexes for all filterable fields.
// Without these indexes, filtering becomes 10-100x slower.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context, collection string) error {
	fields := []struct {
		name string
		kind qdrant.FieldType
	}{
		{FieldUploadAuthor, qdrant.FieldType_FieldTypeKeyword},
		{FieldDocName, qdrant.FieldType_FieldTypeKeyword},
		{FieldIngestionID, qdrant.FieldType_FieldTypeKeyword},
		{FieldIndexID, qdrant.FieldType_FieldTypeInteger},
	}

	for _, field := range fields {
		err := s.call(ctx, "CreateFieldIndex", func(api pointsAPI) error {
			_, err := api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: collection,
				Wait:           qdrant.PtrOf(true),
				FieldName:      field.name,
				FieldType:      field.kind.Enum(),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field.name, err)
		}
	}

	return nil
}

// CollectionExists reports whether the collection exists.
func (s *QdrantStorage) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.call(ctx, "CollectionExists", func(api pointsAPI) error {
		var err error
		exists, err = api.CollectionExists(ctx, collection)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

// CollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStorage) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	info, err := s.collectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}

	return &CollectionInfo{
		Name:      collection,
		Points:    info.GetPointsCount(),
		Dimension: vectorSize(info),
	}, nil
}

func (s *QdrantStorage) collectionInfo(ctx context.Context, collection string) (*qdrant.CollectionInfo, error) {
	var info *qdrant.CollectionInfo
	err := s.call(ctx, "GetCollectionInfo", func(api pointsAPI) error {
		var err error
		info, err = api.GetCollectionInfo(ctx, collection)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", collection, err)
	}
	return info, nil
}

func (s *QdrantStorage) dimension(ctx context.Context, collection string) (int, error) {
	info, err := s.collectionInfo(ctx, collection)
	if err != nil {
		return 0, err
	}
	return vectorSize(info), nil
}

func vectorSize(info *qdrant.CollectionInfo) int {
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
}

// Upsert stores records in batches of 100. Vectors are validated against
// the collection dimension before anything is written.
func (s *QdrantStorage) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}

	// Validate embedding dimensions
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), dim)
		}
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload, err := qdrant.TryValueMap(payloadToMap(r.Payload))
		if err != nil {
			return fmt.Errorf("invalid payload for record %s: %w", r.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: payload,
		}
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))

		err := s.call(ctx, "Upsert", func(api pointsAPI) error {
			_, err := api.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points[i:end],
			})
			return err
		})
		if err != nil {
			failed := make([]string, 0, len(records)-i)
			for _, r := range records[i:] {
				failed = append(failed, r.ID)
			}
			return &UpsertError{
				FailedIDs: failed,
				Err:       fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err),
			}
		}
		s.logger.Debug("Upserted batch", "collection", collection, "from", i, "to", end)
	}

	return nil
}

// Search scrolls through every match, then orders and paginates them.
// Qdrant's native ordering cannot combine with offsets, so sorting happens
// here with the doc_name/index_id tie-breakers.
func (s *QdrantStorage) Search(ctx context.Context, collection string, req SearchRequest) (*SearchPage, error) {
	filter := toQdrantFilter(req.Filter)

	var matches []Record
	var offset *qdrant.PointId
	for {
		var (
			results []*qdrant.RetrievedPoint
			next    *qdrant.PointId
		)
		err := s.call(ctx, "Scroll", func(api pointsAPI) error {
			var err error
			results, next, err = api.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: collection,
				Filter:         filter,
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(false),
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll %s: %w", collection, err)
		}

		for _, point := range results {
			matches = append(matches, Record{
				ID:      point.GetId().GetUuid(),
				Payload: payloadFromQdrant(point.GetPayload()),
			})
		}

		if next == nil || len(results) == 0 {
			break
		}
		offset = next
	}

	return page(matches, req), nil
}

// Query performs vector similarity search. Returns up to limit records
// ordered by score descending.
func (s *QdrantStorage) Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredRecord, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	var results []*qdrant.ScoredPoint
	err = s.call(ctx, "Query", func(api pointsAPI) error {
		var err error
		results, err = api.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         toQdrantFilter(filter),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	hits := make([]ScoredRecord, 0, len(results))
	for _, result := range results {
		hits = append(hits, ScoredRecord{
			Record: Record{
				ID:      result.GetId().GetUuid(),
				Payload: payloadFromQdrant(result.GetPayload()),
			},
			Score: float64(result.GetScore()),
		})
	}
	return hits, nil
}

// Count returns the exact number of records matching filter.
func (s *QdrantStorage) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	var n uint64
	err := s.call(ctx, "Count", func(api pointsAPI) error {
		var err error
		n, err = api.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Filter:         toQdrantFilter(filter),
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return int(n), nil
}

// Delete removes every record matching filter and waits for the operation
// to be applied.
func (s *QdrantStorage) Delete(ctx context.Context, collection string, filter Filter) error {
	if filter.Empty() {
		return errors.New("refusing to delete with an empty filter")
	}

	err := s.call(ctx, "Delete", func(api pointsAPI) error {
		_, err := api.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return nil
}

// Close closes the Qdrant client connection. Later calls fail with
// ErrSessionClosed.
func (s *QdrantStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition
	if f.UploadAuthor != "" {
		must = append(must, qdrant.NewMatch(FieldUploadAuthor, f.UploadAuthor))
	}
	if f.DocName != "" {
		must = append(must, qdrant.NewMatch(FieldDocName, f.DocName))
	}
	if f.IndexID != 0 {
		must = append(must, qdrant.NewMatchInt(FieldIndexID, int64(f.IndexID)))
	}
	if f.IngestionID != "" {
		must = append(must, qdrant.NewMatch(FieldIngestionID, f.IngestionID))
	}
	if f.ExcludeIngestionID != "" {
		mustNot = append(mustNot, qdrant.NewMatch(FieldIngestionID, f.ExcludeIngestionID))
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

func payloadToMap(p Payload) map[string]any {
	return map[string]any{
		FieldQuestion:     p.Question,
		FieldAnswer:       p.Answer,
		FieldDocName:      p.DocName,
		FieldUploadAuthor: p.UploadAuthor,
		FieldCollection:   p.Collection,
		FieldIndexID:      p.IndexID,
		FieldIngestedAt:   p.IngestedAt.UTC().Format(time.RFC3339Nano),
		FieldChunkIndex:   p.ChunkIndex,
		FieldSource:       p.Source,
		FieldCategory:     p.Category,
		FieldIngestionID:  p.IngestionID,
	}
}

func payloadFromQdrant(payload map[string]*qdrant.Value) Payload {
	// Parse ingestion_timestamp; zero time if missing or malformed
	ingestedAt, err := time.Parse(time.RFC3339Nano, payload[FieldIngestedAt].GetStringValue())
	if err != nil {
		ingestedAt = time.Time{}
	}

	return Payload{
		Question:     payload[FieldQuestion].GetStringValue(),
		Answer:       payload[FieldAnswer].GetStringValue(),
		DocName:      payload[FieldDocName].GetStringValue(),
		UploadAuthor: payload[FieldUploadAuthor].GetStringValue(),
		Collection:   payload[FieldCollection].GetStringValue(),
		IndexID:      int(payload[FieldIndexID].GetIntegerValue()),
		IngestedAt:   ingestedAt,
		ChunkIndex:   int(payload[FieldChunkIndex].GetIntegerValue()),
		Source:       payload[FieldSource].GetStringValue(),
		Category:     payload[FieldCategory].GetStringValue(),
		IngestionID:  payload[FieldIngestionID].GetStringValue(),
	}
}
