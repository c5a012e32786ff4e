package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/ingestion"
	"github.com/poiesic/itk/metrics"
	"github.com/poiesic/itk/search"
	"github.com/poiesic/itk/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCycles struct {
	err      error
	running  bool
	triggers atomic.Int32
}

func (f *fakeCycles) Trigger(ctx context.Context) error {
	f.triggers.Add(1)
	return f.err
}

func (f *fakeCycles) Running() bool { return f.running }

type fakeRuns struct {
	run *core.Run
	err error
}

func (f *fakeRuns) SaveRun(ctx context.Context, run *core.Run) error { return nil }

func (f *fakeRuns) LastRun(ctx context.Context) (*core.Run, error) { return f.run, f.err }

type fakeSearcher struct {
	query, company string
	limit          int
	results        []*core.SearchResult
	err            error
}

func (f *fakeSearcher) Search(ctx context.Context, query, company string, limit int) ([]*core.SearchResult, error) {
	f.query, f.company, f.limit = query, company, limit
	if strings.TrimSpace(query) == "" {
		return nil, search.ErrEmptyQuery
	}
	return f.results, f.err
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	h := NewRouter(Config{Cycles: &fakeCycles{}})
	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestTriggerScrape(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		cycles := &fakeCycles{}
		rec := do(t, NewRouter(Config{Cycles: cycles}), http.MethodPost, "/scrape")

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "Scraping triggered successfully", decode[MessageResponse](t, rec).Message)
		assert.Equal(t, int32(1), cycles.triggers.Load())
	})

	t.Run("already running", func(t *testing.T) {
		cycles := &fakeCycles{err: ingestion.ErrCycleInProgress}
		rec := do(t, NewRouter(Config{Cycles: cycles}), http.MethodPost, "/scrape")

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "Scraping already in progress", decode[MessageResponse](t, rec).Message)
	})

	t.Run("failure", func(t *testing.T) {
		cycles := &fakeCycles{err: errors.New("pool closed")}
		rec := do(t, NewRouter(Config{Cycles: cycles}), http.MethodPost, "/scrape")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
	})

	t.Run("get not allowed", func(t *testing.T) {
		rec := do(t, NewRouter(Config{Cycles: &fakeCycles{}}), http.MethodGet, "/scrape")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestScrapeStatus(t *testing.T) {
	t.Run("no run yet", func(t *testing.T) {
		h := NewRouter(Config{Cycles: &fakeCycles{running: true}, Runs: &fakeRuns{}})
		rec := do(t, h, http.MethodGet, "/scrape/status")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[statusResponse](t, rec)
		assert.True(t, body.Running)
		assert.Nil(t, body.LastRun)
	})

	t.Run("last run", func(t *testing.T) {
		started := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		run := &core.Run{
			Id:             "run-1",
			StartedAt:      started,
			FinishedAt:     started.Add(time.Minute),
			URLs:           4,
			Documents:      4,
			Sentinels:      1,
			Entities:       2,
			FailedEntities: []string{"Globex"},
			Error:          "ingestion failed",
		}
		h := NewRouter(Config{Cycles: &fakeCycles{}, Runs: &fakeRuns{run: run}})
		rec := do(t, h, http.MethodGet, "/scrape/status")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[statusResponse](t, rec)
		require.NotNil(t, body.LastRun)
		assert.Equal(t, "run-1", body.LastRun.ID)
		assert.Equal(t, 4, body.LastRun.URLs)
		assert.Equal(t, []string{"Globex"}, body.LastRun.FailedEntities)
		assert.False(t, body.LastRun.Succeeded)
		assert.True(t, started.Equal(body.LastRun.StartedAt))
	})

	t.Run("store error", func(t *testing.T) {
		h := NewRouter(Config{Cycles: &fakeCycles{}, Runs: &fakeRuns{err: storage.ErrStorageClosed}})
		rec := do(t, h, http.MethodGet, "/scrape/status")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		rec := do(t, NewRouter(Config{Cycles: &fakeCycles{}}), http.MethodGet, "/scrape/status")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSearch(t *testing.T) {
	fetched := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	results := []*core.SearchResult{{
		Chunk: &core.IndexedChunk{Text: "Acme builds rockets.", Source: "https://acme.example/", FetchedAt: fetched},
		Score: 0.92,
	}}

	t.Run("ok", func(t *testing.T) {
		searcher := &fakeSearcher{results: results}
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: searcher})
		rec := do(t, h, http.MethodGet, "/search?q=rockets&company=Acme&k=3")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "rockets", searcher.query)
		assert.Equal(t, "Acme", searcher.company)
		assert.Equal(t, 3, searcher.limit)

		body := decode[searchResponse](t, rec)
		require.Len(t, body.Results, 1)
		assert.Equal(t, "Acme builds rockets.", body.Results[0].Text)
		assert.Equal(t, "https://acme.example/", body.Results[0].Source)
		assert.InDelta(t, 0.92, body.Results[0].Score, 1e-6)
	})

	t.Run("default limit", func(t *testing.T) {
		searcher := &fakeSearcher{}
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: searcher})
		rec := do(t, h, http.MethodGet, "/search?q=rockets")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, searcher.limit)
		assert.Empty(t, decode[searchResponse](t, rec).Results)
	})

	t.Run("missing query", func(t *testing.T) {
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: &fakeSearcher{}})
		rec := do(t, h, http.MethodGet, "/search")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad k", func(t *testing.T) {
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: &fakeSearcher{}})
		for _, k := range []string{"zero", "0", "-1", "51"} {
			rec := do(t, h, http.MethodGet, "/search?q=rockets&k="+k)
			assert.Equal(t, http.StatusBadRequest, rec.Code, k)
		}
	})

	t.Run("unknown company", func(t *testing.T) {
		searcher := &fakeSearcher{err: storage.ErrNotFound}
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: searcher})
		rec := do(t, h, http.MethodGet, "/search?q=rockets&company=Initech")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("backend failure", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("embedding service down")}
		h := NewRouter(Config{Cycles: &fakeCycles{}, Searcher: searcher})
		rec := do(t, h, http.MethodGet, "/search?q=rockets")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveCycle(true, time.Second)

	h := NewRouter(Config{Cycles: &fakeCycles{}, Gatherer: reg})
	rec := do(t, h, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "itk_cycles_total")
}

func TestNew(t *testing.T) {
	srv := New(":0", Config{Cycles: &fakeCycles{}})
	assert.Equal(t, ":0", srv.Addr)
	assert.NotNil(t, srv.Handler)
}
