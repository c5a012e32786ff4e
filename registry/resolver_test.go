package registry

import (
	"testing"
	"time"

	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(source, content string) core.Document {
	return core.Document{Content: content, Source: source, FetchedAt: time.Now().UTC(), Method: core.FetchStatic}
}

func TestResolver_Group(t *testing.T) {
	reg := New([]core.EntityRecord{
		{Name: "Acme", URLs: []string{"http://acme.com/a"}},
	}, nil)
	resolver := NewResolver(reg, nil, nil)

	docs := []core.Document{
		testDoc("http://acme.com/a", "acme text"),
		testDoc("http://unknown.com", "stray"),
	}

	groups, unattributed := resolver.Group(docs)

	require.Len(t, groups, 1)
	require.Len(t, groups["Acme"], 1)
	assert.Equal(t, "acme text", groups["Acme"][0].Content)
	assert.Equal(t, 1, unattributed)
}

func TestResolver_GroupPreservesOrder(t *testing.T) {
	reg := New([]core.EntityRecord{
		{Name: "Acme", URLs: []string{"http://acme.com/a", "http://acme.com/b"}},
		{Name: "Beta", URLs: []string{"http://beta.com"}},
	}, nil)
	resolver := NewResolver(reg, nil, nil)

	docs := []core.Document{
		testDoc("http://acme.com/b", "b"),
		testDoc("http://beta.com", "beta"),
		testDoc("HTTP://ACME.COM/a", "a"),
	}

	groups, unattributed := resolver.Group(docs)

	assert.Zero(t, unattributed)
	require.Len(t, groups["Acme"], 2)
	assert.Equal(t, "b", groups["Acme"][0].Content)
	assert.Equal(t, "a", groups["Acme"][1].Content)
	assert.Len(t, groups["Beta"], 1)
}

func TestResolver_SentinelsStillAttributed(t *testing.T) {
	reg := New([]core.EntityRecord{{Name: "Acme", URLs: []string{"http://acme.com"}}}, nil)
	resolver := NewResolver(reg, nil, nil)

	groups, _ := resolver.Group([]core.Document{core.NewSentinelDocument("http://acme.com")})
	require.Len(t, groups["Acme"], 1)
	assert.True(t, groups["Acme"][0].IsSentinel())
}

func TestResolver_CountsUnattributedMetric(t *testing.T) {
	reg := New(nil, nil)
	promReg := prometheus.NewRegistry()
	resolver := NewResolver(reg, nil, metrics.New(promReg))

	groups, unattributed := resolver.Group([]core.Document{
		testDoc("http://x.com", "x"),
		testDoc("http://y.com", "y"),
	})

	assert.Empty(t, groups)
	assert.Equal(t, 2, unattributed)

	families, err := promReg.Gather()
	require.NoError(t, err)
	var value float64
	for _, f := range families {
		if f.GetName() == "itk_unattributed_documents_total" {
			value = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, value)
}
