package storage

import (
	"context"

	"github.com/poiesic/itk/core"
)

// VectorIndex manages named vector collections.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// GetOrCreate returns the collection with the given name, creating it
	// on first use. Concurrent calls for the same name return the same collection.
	GetOrCreate(ctx context.Context, name string) (Collection, error)

	// Collection returns an existing collection.
	// Returns ErrNotFound if no collection with that name has been created.
	Collection(ctx context.Context, name string) (Collection, error)

	// Collections lists the names of every collection, sorted.
	Collections(ctx context.Context) ([]string, error)
}

// Collection is an append-only set of embedded chunks.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Add appends chunks to the collection.
	// Assigns IDs and InsertedAt, and returns the stored chunks.
	// Chunks must carry a vector; ErrInvalidQuery is returned otherwise.
	Add(ctx context.Context, chunks ...*core.IndexedChunk) ([]*core.IndexedChunk, error)

	// Count returns the number of chunks in the collection.
	Count(ctx context.Context) (int, error)

	// Scan calls fn with the stored chunks in batches of up to batchSize,
	// in insertion order. Iteration stops at the first error from fn.
	Scan(ctx context.Context, batchSize int, fn func([]*core.IndexedChunk) error) error

	// Update overwrites stored chunks, matched by Id.
	// Chunks must carry a vector and a non-zero Id; ErrInvalidQuery is returned otherwise.
	Update(ctx context.Context, chunks ...*core.IndexedChunk) error

	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}

// RunRepository persists scrape cycle summaries.
type RunRepository interface {
	// SaveRun stores a run as the most recent cycle.
	SaveRun(ctx context.Context, run *core.Run) error

	// LastRun returns the most recent run.
	// Returns nil, nil if no cycle has completed yet.
	LastRun(ctx context.Context) (*core.Run, error)
}
