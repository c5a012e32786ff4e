package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/storage"
)

// Index implements storage.VectorIndex for BadgerDB.
// Collection IDs are derived from the collection name, so reopening a
// database finds the collections created by earlier processes.
type Index struct {
	backend     *Backend
	idSeq       *badger.Sequence
	logger      *slog.Logger
	mu          sync.Mutex
	collections map[string]*Collection
}

var _ storage.VectorIndex = (*Index)(nil)

// NewIndex creates a new Index.
func NewIndex(backend *Backend) (*Index, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &Index{
		backend:     backend,
		idSeq:       idSeq,
		logger:      backend.logger.With("component", "vector-index"),
		collections: make(map[string]*Collection),
	}, nil
}

// Close releases the ID sequence.
func (x *Index) Close() error {
	return x.idSeq.Release()
}

// GetOrCreate returns the named collection, creating it if necessary.
func (x *Index) GetOrCreate(ctx context.Context, name string) (storage.Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty collection name", storage.ErrInvalidQuery)
	}
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}

	id := core.IDFromContent(name)
	created := false
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionKey(id)
		_, err := tx.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, []byte(name)); err != nil {
			return err
		}
		created = true
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	if created {
		x.logger.Debug("created collection", "collection", name)
	}

	col := x.newCollection(id, name)
	x.collections[name] = col
	return col, nil
}

// Collection returns an existing collection or storage.ErrNotFound.
func (x *Index) Collection(ctx context.Context, name string) (storage.Collection, error) {
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}

	id := core.IDFromContent(name)
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeCollectionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	col := x.newCollection(id, name)
	x.collections[name] = col
	return col, nil
}

// Collections lists every collection name in sorted order.
func (x *Index) Collections(ctx context.Context) ([]string, error) {
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var names []string
	err := x.backend.scanPrefix(ctx, []byte(collectionPrefix+":"), false, func(_, val []byte) error {
		names = append(names, string(val))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (x *Index) newCollection(id core.ID, name string) *Collection {
	return &Collection{
		index:  x,
		id:     id,
		name:   name,
		prefix: makePartialChunkKey(id),
	}
}

// nextID returns the next chunk ID from the shared sequence.
func (x *Index) nextID() (core.ID, error) {
	next, err := x.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		next, err = x.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(next), nil
}

// Collection implements storage.Collection for BadgerDB.
type Collection struct {
	index  *Index
	id     core.ID
	name   string
	prefix []byte
	mu     sync.Mutex
}

var _ storage.Collection = (*Collection)(nil)

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Add appends chunks to the collection.
func (c *Collection) Add(ctx context.Context, chunks ...*core.IndexedChunk) ([]*core.IndexedChunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateIndexedChunk(chunk); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
		}
	}
	if len(chunks) == 0 {
		return chunks, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.index.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	err := c.index.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, chunk := range chunks {
			id, err := c.index.nextID()
			if err != nil {
				return err
			}
			chunk.Id = id
			chunk.Collection = c.name
			chunk.InsertedAt = now

			if err := wb.Set(makeChunkKey(c.id, id), storage.MarshalIndexedChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add to collection %q: %w", c.name, err)
	}

	return chunks, nil
}

// Count returns the number of stored chunks.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if c.index.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := c.index.backend.scanPrefix(ctx, c.prefix, true, func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}

// Scan calls fn with batches of stored chunks in key order.
func (c *Collection) Scan(ctx context.Context, batchSize int, fn func([]*core.IndexedChunk) error) error {
	if batchSize <= 0 {
		return storage.ErrInvalidQuery
	}
	if c.index.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	batch := make([]*core.IndexedChunk, 0, batchSize)
	err := c.index.backend.scanPrefix(ctx, c.prefix, false, func(_, val []byte) error {
		chunk, err := storage.UnmarshalIndexedChunk(val)
		if err != nil {
			return err
		}
		batch = append(batch, chunk)
		if len(batch) < batchSize {
			return nil
		}
		err = fn(batch)
		batch = make([]*core.IndexedChunk, 0, batchSize)
		return err
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// Update overwrites existing chunks in place.
func (c *Collection) Update(ctx context.Context, chunks ...*core.IndexedChunk) error {
	for _, chunk := range chunks {
		if err := core.ValidateIndexedChunk(chunk); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
		}
		if chunk.Id == 0 {
			return fmt.Errorf("%w: chunk has no id", storage.ErrInvalidQuery)
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.index.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.index.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, chunk := range chunks {
			chunk.Collection = c.name
			if err := wb.Set(makeChunkKey(c.id, chunk.Id), storage.MarshalIndexedChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update collection %q: %w", c.name, err)
	}
	return nil
}

// FindSimilar finds chunks similar to the given vector.
// Vectors are stored L2-normalized, so the dot product is the cosine similarity.
func (c *Collection) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if c.index.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var results []*core.SearchResult
	err := c.index.backend.scanPrefix(ctx, c.prefix, false, func(_, val []byte) error {
		chunk, err := storage.UnmarshalIndexedChunk(val)
		if err != nil {
			return err
		}
		if len(chunk.Vector) == 0 {
			return nil
		}

		similarity := dotProduct(vector, chunk.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{
				Chunk: chunk,
				Score: similarity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rankResults(results, limit), nil
}
