package ingestion

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrScraperRequired is returned when a scraper is not provided.
	ErrScraperRequired = errors.New("scraper required")

	// ErrCycleInProgress is returned by Trigger while a cycle is still running.
	ErrCycleInProgress = errors.New("scrape cycle already in progress")

	// ErrInvalidMaxAttempts is returned when a retry is configured with no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidBatchSize is returned when the embedding batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrEmbeddingMismatch is returned when the embedder returns a different
	// number of vectors than texts it was given.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrEntityPanicked wraps a panic recovered while ingesting one entity.
	ErrEntityPanicked = errors.New("entity ingestion panicked")
)

// EntityFailure records why one entity could not be ingested.
type EntityFailure struct {
	Entity string
	Err    error
}

func (f EntityFailure) Error() string {
	return fmt.Sprintf("entity %q: %v", f.Entity, f.Err)
}

func (f EntityFailure) Unwrap() error {
	return f.Err
}

// Error aggregates the failures of a single ingestion. It is returned only
// after every entity task has finished.
type Error struct {
	Failures []EntityFailure
}

func newError(failures []EntityFailure) *Error {
	slices.SortFunc(failures, func(a, b EntityFailure) int {
		return strings.Compare(a.Entity, b.Entity)
	})
	return &Error{Failures: failures}
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("ingestion failed for %d entities: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each failure so errors.Is and errors.As see every cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Entities returns the names of the failed entities, sorted.
func (e *Error) Entities() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Entity
	}
	return names
}
