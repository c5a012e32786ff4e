package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Deterministic(t *testing.T) {
	a := Vector("acme")
	b := Vector("acme")
	c := Vector("beta")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, DefaultDimensions)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedder_Counts(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	_, err := m.EmbedText(ctx, "one")
	require.NoError(t, err)
	vectors, err := m.EmbedTexts(ctx, []string{"two", "three"})
	require.NoError(t, err)

	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, 3, m.TextCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Zero(t, m.TextCount())
}

func TestMockEmbedder_InjectedError(t *testing.T) {
	m := NewMockEmbedder()
	boom := errors.New("boom")
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}

	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestMockEmbedder_Concurrent(t *testing.T) {
	m := NewMockEmbedder()
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_, _ = m.EmbedTexts(context.Background(), []string{"a", "b"})
		})
	}
	wg.Wait()
	assert.Equal(t, 10, m.CallCount())
	assert.Equal(t, 20, m.TextCount())
}
