package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/storage"
)

const (
	// DefaultLimit is the number of results returned when none is requested.
	DefaultLimit = 2
	// DefaultMinSimilarity accepts every candidate.
	DefaultMinSimilarity float32 = -1
	// DefaultVerbatimBoost is added to candidates containing every query word.
	DefaultVerbatimBoost float32 = 0.3

	// candidates fetched per requested result, so the verbatim boost can
	// promote matches that rank just below the cut.
	overfetch = 4
)

// Searcher runs similarity queries against the vector index.
type Searcher struct {
	index         storage.VectorIndex
	embedder      ai.Embedder
	minSimilarity float32
	verbatimBoost float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity drops candidates scoring below threshold.
func WithMinSimilarity(threshold float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = threshold
		return nil
	}
}

// WithVerbatimBoost sets the score bonus for candidates containing every
// significant query word. Zero disables the boost.
func WithVerbatimBoost(boost float32) Option {
	return func(s *Searcher) error {
		s.verbatimBoost = boost
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		index:         index,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		verbatimBoost: DefaultVerbatimBoost,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// Search returns up to limit chunks similar to query. An empty company
// searches the aggregate collection. A limit <= 0 means DefaultLimit.
// Returns storage.ErrNotFound if the company has never been ingested.
func (s *Searcher) Search(ctx context.Context, query, company string, limit int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, company, limit, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query, company string, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	name := core.CollectionName(core.AggregateEntity)
	if strings.TrimSpace(company) != "" {
		name = core.CollectionName(company)
	}
	monitor.Start(query, name)

	collection, err := s.index.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	candidates, err := collection.FindSimilar(ctx, ai.NormalizeVector(embedding), s.minSimilarity, limit*overfetch)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "collection", name, "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(candidates)

	if s.verbatimBoost != 0 {
		for _, c := range candidates {
			if containsAllQueryWords(c.Chunk.Text, query) {
				c.Score += s.verbatimBoost
				monitor.VerbatimHit(c)
			}
		}
		slices.SortStableFunc(candidates, func(a, b *core.SearchResult) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			}
			return 0
		})
	}

	results := candidates[:min(limit, len(candidates))]
	s.logger.Debug("search complete", "collection", name, "candidates", len(candidates), "results", len(results))
	monitor.Finish(results)
	return results, nil
}
