package ingest

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/HlhDataScience/DocsIngestionApi/internal/qa"
	"github.com/HlhDataScience/DocsIngestionApi/internal/storage"
)

// generate pulls chunks lazily and runs them through the generator on the
// shared worker pool. A failed chunk is recorded and skipped; the stage
// fails only when every chunk failed.
func (g *Graph) generate(ctx context.Context, st *state) error {
	// Issued calls are never interrupted; a cancelled run just stops
	// waiting for them.
	detached := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		results  = make(map[int][]qa.Pair)
		failures []Failure
	)

	submitted := 0
	for ctx.Err() == nil {
		chunk, ok := st.chunks.Next()
		if !ok {
			break
		}
		submitted++

		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			pairs, err := g.deps.Generator.Generate(detached, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.logger.Warn("Chunk generation failed",
					"doc_name", st.req.DocName,
					"chunk", chunk.Index,
					"error", err)
				failures = append(failures, Failure{
					Stage:      StageGenerating,
					ChunkIndex: chunk.Index,
					Reason:     err.Error(),
				})
				return
			}
			results[chunk.Index] = pairs
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("submit chunk %d: %w", chunk.Index, err)
		}
	}
	st.chunkCount = submitted

	if err := waitOrCancel(ctx, wg.Wait); err != nil {
		return err
	}

	slices.SortFunc(failures, func(a, b Failure) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	st.failures = append(st.failures, failures...)

	if submitted > 0 && len(results) == 0 {
		return fmt.Errorf("%w: %d of %d chunks", ErrAllChunksFailed, len(failures), submitted)
	}

	// Restore document order regardless of completion order
	for _, idx := range slices.Sorted(maps.Keys(results)) {
		st.pairs = append(st.pairs, results[idx]...)
	}
	return nil
}

// embed embeds the questions in batches with bounded fan-out. A failed batch
// is retried record by record; records that still fail are dropped and
// reported.
func (g *Graph) embed(ctx context.Context, st *state) error {
	if len(st.pairs) == 0 {
		return nil
	}
	detached := context.WithoutCancel(ctx)

	pairs := st.pairs
	vectors := make([][]float32, len(pairs))

	var (
		mu       sync.Mutex
		failures []Failure
		lastErr  error
		eg       errgroup.Group
	)
	eg.SetLimit(g.concurrency)

	for start := 0; start < len(pairs) && ctx.Err() == nil; start += g.embedBatchSize {
		end := min(start+g.embedBatchSize, len(pairs))
		eg.Go(func() error {
			batchFailures, err := g.embedBatch(detached, pairs[start:end], vectors[start:end])
			if len(batchFailures) > 0 {
				mu.Lock()
				failures = append(failures, batchFailures...)
				lastErr = err
				mu.Unlock()
			}
			return nil
		})
	}

	if err := waitOrCancel(ctx, func() { _ = eg.Wait() }); err != nil {
		return err
	}

	slices.SortStableFunc(failures, func(a, b Failure) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	st.failures = append(st.failures, failures...)

	for i, v := range vectors {
		if v != nil {
			st.embedded = append(st.embedded, embeddedPair{pair: pairs[i], vector: v})
		}
	}
	if len(st.embedded) == 0 {
		return fmt.Errorf("%w: %w", ErrAllRecordsFailed, lastErr)
	}
	return nil
}

// embedBatch fills out with one vector per pair. Entries left nil were
// dropped and are described by the returned failures.
func (g *Graph) embedBatch(ctx context.Context, pairs []qa.Pair, out [][]float32) ([]Failure, error) {
	texts := make([]string, len(pairs))
	for i, p := range pairs {
		texts[i] = p.Question
	}

	vectors, err := g.deps.Embedder.Embed(ctx, texts)
	if err == nil {
		err = g.checkVectors(vectors, len(texts))
	}
	if err == nil {
		copy(out, vectors)
		return nil, nil
	}
	g.logger.Warn("Embedding batch failed, retrying per record", "size", len(texts), "error", err)

	var (
		failures []Failure
		lastErr  error
	)
	for i, p := range pairs {
		v, err := g.deps.Embedder.Embed(ctx, texts[i:i+1])
		if err == nil {
			err = g.checkVectors(v, 1)
		}
		if err != nil {
			g.logger.Warn("Dropping record", "chunk", p.ChunkIndex, "question", p.Question, "error", err)
			failures = append(failures, Failure{
				Stage:      StageEmbedding,
				ChunkIndex: p.ChunkIndex,
				Reason:     err.Error(),
			})
			lastErr = err
			continue
		}
		out[i] = v[0]
	}
	return failures, lastErr
}

// checkVectors rejects a provider reply that does not hold exactly n
// vectors of the provider's dimension.
func (g *Graph) checkVectors(vectors [][]float32, n int) error {
	if len(vectors) != n {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), n)
	}
	dim := g.deps.Embedder.Dimension()
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dim)
		}
	}
	return nil
}

// persist writes the run's records under the identity lock. index_id runs
// 1..n over the surviving records in document order, so a failed chunk
// leaves no gap. Once the write starts it runs to completion.
func (g *Graph) persist(ctx context.Context, st *state) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := st.req
	unlock := g.locks.Lock(identityKey(req.Collection, req.UploadAuthor, req.DocName))
	defer unlock()

	// Cancelled while waiting for the lock
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	if !req.UpdateCollection {
		if err := g.checkDuplicate(ctx, st); err != nil {
			return err
		}
	}

	now := g.now().UTC()
	records := make([]storage.Record, len(st.embedded))
	for i, e := range st.embedded {
		indexID := i + 1
		records[i] = storage.Record{
			ID:     storage.RecordID(req.Collection, req.UploadAuthor, req.DocName, st.ingestionID, indexID),
			Vector: e.vector,
			Payload: storage.Payload{
				Question:     e.pair.Question,
				Answer:       e.pair.Answer,
				DocName:      req.DocName,
				UploadAuthor: req.UploadAuthor,
				Collection:   req.Collection,
				IndexID:      indexID,
				IngestedAt:   now,
				ChunkIndex:   e.pair.ChunkIndex,
				Source:       req.InputDocsPath,
				Category:     storage.DefaultCategory,
				IngestionID:  st.ingestionID,
			},
		}
	}

	if len(records) > 0 {
		if err := g.deps.Store.Upsert(ctx, req.Collection, records); err != nil {
			g.rollback(ctx, st)
			return fmt.Errorf("upsert: %w", err)
		}
	}

	if req.UpdateCollection {
		err := g.deps.Store.Delete(ctx, req.Collection, storage.Filter{
			UploadAuthor:       req.UploadAuthor,
			DocName:            req.DocName,
			ExcludeIngestionID: st.ingestionID,
		})
		if err != nil {
			g.rollback(ctx, st)
			return fmt.Errorf("replace previous records: %w", err)
		}
	}

	st.written = len(records)
	return nil
}

// rollback removes whatever this run managed to write.
func (g *Graph) rollback(ctx context.Context, st *state) {
	err := g.deps.Store.Delete(ctx, st.req.Collection, storage.Filter{
		UploadAuthor: st.req.UploadAuthor,
		DocName:      st.req.DocName,
		IngestionID:  st.ingestionID,
	})
	if err != nil {
		g.logger.Error("Rollback failed; records of this run may remain",
			"ingestion_id", st.ingestionID,
			"error", err)
	}
}

// waitOrCancel runs wait in the background and returns when it finishes or
// ctx is done, whichever comes first.
func waitOrCancel(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
