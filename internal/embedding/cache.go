package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// CachedProvider memoizes another provider's vectors in BadgerDB, keyed by
// model and text. Re-ingesting an unchanged document costs no embedding
// calls.
type CachedProvider struct {
	next   Provider
	model  string
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewCachedProvider opens the cache at dir, or an in-memory cache when dir
// is empty, in front of next.
func NewCachedProvider(next Provider, model, dir string) (*CachedProvider, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "embedding-cache")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	return &CachedProvider{
		next:   next,
		model:  model,
		db:     db,
		logger: logger,
	}, nil
}

// Dimension returns the wrapped provider's dimension.
func (c *CachedProvider) Dimension() int {
	return c.next.Dimension()
}

// Embed serves cached vectors and asks the wrapped provider only for the
// texts it has not seen.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, i)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			vec, ok := decodeVector(raw, c.Dimension())
			if !ok {
				missing = append(missing, i)
				continue
			}
			out[i] = vec
		}
		return nil
	})
	if err != nil {
		// A broken cache must not fail embedding
		c.logger.Warn("Embedding cache read failed", "error", err)
		missing = missing[:0]
		for i := range texts {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vectors, err := c.next.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for j, i := range missing {
			out[i] = vectors[j]
			if err := txn.Set(c.key(texts[i]), encodeVector(vectors[j])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Embedding cache write failed", "error", err)
		for j, i := range missing {
			out[i] = vectors[j]
		}
	}

	c.logger.Debug("Embedded texts", "cached", len(texts)-len(missing), "fetched", len(missing))
	return out, nil
}

// Close closes the cache database.
func (c *CachedProvider) Close() error {
	return c.db.Close()
}

func (c *CachedProvider) key(text string) []byte {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return append([]byte("emb:"), h.Sum(nil)...)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, bool) {
	if len(buf) != 4*dim {
		return nil, false
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, true
}
