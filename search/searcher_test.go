package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/ai/mock"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/storage"
	"github.com/poiesic/itk/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *badger.Index {
	t.Helper()
	index, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		index.Close()
		backend.Close()
	})
	return index
}

func seed(t *testing.T, index storage.VectorIndex, entity string, texts ...string) {
	t.Helper()
	col, err := index.GetOrCreate(context.Background(), core.CollectionName(entity))
	require.NoError(t, err)

	chunks := make([]*core.IndexedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.IndexedChunk{
			Text:      text,
			Source:    "https://" + entity + ".example/",
			FetchedAt: time.Now().UTC(),
			Index:     i,
			Vector:    ai.NormalizeVector(mock.Vector(text)),
		}
	}
	_, err = col.Add(context.Background(), chunks...)
	require.NoError(t, err)
}

func TestNewSearcher(t *testing.T) {
	index := newTestIndex(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(index, embedder)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(index, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with options", func(t *testing.T) {
		searcher, err := NewSearcher(index, embedder,
			WithLogger(slog.Default()), WithMinSimilarity(0.5), WithVerbatimBoost(0))
		require.NoError(t, err)
		assert.Equal(t, float32(0.5), searcher.minSimilarity)
		assert.Zero(t, searcher.verbatimBoost)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrIndexRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(index, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestSearch_EmptyQuery(t *testing.T) {
	searcher, err := NewSearcher(newTestIndex(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "   ", "", 2)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_UnknownCompany(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, "acme", "Acme builds rockets.")
	embedder := mock.NewMockEmbedder()
	searcher, err := NewSearcher(index, embedder)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "rockets", "Initech", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, embedder.CallCount(), "no embedding for a missing collection")
}

func TestSearch_Company(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, "acme", "Acme builds rockets.", "Acme was founded in the desert.", "Acme is hiring.")
	seed(t, index, "globex", "Globex sells everything.")

	searcher, err := NewSearcher(index, mock.NewMockEmbedder(), WithVerbatimBoost(0))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Acme is hiring.", " Acme ", 0)
	require.NoError(t, err)
	require.Len(t, results, DefaultLimit)

	assert.Equal(t, "Acme is hiring.", results[0].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.Equal(t, "acme_vectorstore", r.Chunk.Collection)
	}
}

func TestSearch_Aggregate(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, core.AggregateEntity, "Acme builds rockets.", "Globex sells everything.")

	searcher, err := NewSearcher(index, mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Globex sells everything.", "", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Globex sells everything.", results[0].Chunk.Text)
}

func TestSearch_VerbatimBoost(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, "acme", "Our rockets launch daily.", "Quarterly revenue grew.", "Offices in three cities.")

	searcher, err := NewSearcher(index, mock.NewMockEmbedder(), WithVerbatimBoost(10))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "rockets launch", "acme", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Our rockets launch daily.", results[0].Chunk.Text)
	assert.Greater(t, results[0].Score, float32(10))
}

func TestSearch_MinSimilarity(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, "acme", "Acme builds rockets.", "Acme was founded in the desert.")

	searcher, err := NewSearcher(index, mock.NewMockEmbedder(), WithMinSimilarity(0.9999), WithVerbatimBoost(0))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Acme builds rockets.", "acme", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Acme builds rockets.", results[0].Chunk.Text)
}

func TestSearch_EmbeddingError(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, core.AggregateEntity, "Acme builds rockets.")

	errDown := errors.New("embedding service down")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errDown
	}
	searcher, err := NewSearcher(index, embedder)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "rockets", "", 2)
	assert.ErrorIs(t, err, errDown)
}

type recordingMonitor struct {
	query, collection string
	candidates        int
	verbatim          int
	finished          int
}

func (m *recordingMonitor) Start(query, collection string) {
	m.query, m.collection = query, collection
}
func (m *recordingMonitor) AfterVectorSearch(c []*core.SearchResult) { m.candidates = len(c) }
func (m *recordingMonitor) VerbatimHit(_ *core.SearchResult)         { m.verbatim++ }
func (m *recordingMonitor) Finish(r []*core.SearchResult)            { m.finished = len(r) }

func TestSearchWithMonitor(t *testing.T) {
	index := newTestIndex(t)
	seed(t, index, "acme", "Our rockets launch daily.", "Quarterly revenue grew.", "Offices in three cities.")

	searcher, err := NewSearcher(index, mock.NewMockEmbedder())
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := searcher.SearchWithMonitor(context.Background(), "rockets", "acme", 2, monitor)
	require.NoError(t, err)

	assert.Equal(t, "rockets", monitor.query)
	assert.Equal(t, "acme_vectorstore", monitor.collection)
	assert.Equal(t, 3, monitor.candidates)
	assert.Equal(t, 1, monitor.verbatim)
	assert.Equal(t, len(results), monitor.finished)
	assert.Equal(t, 2, monitor.finished)
}
