package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/itk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer records calls and returns canned HTML.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   []string
	html    string
	err     error
	delay   time.Duration
	panics  bool
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *fakeRenderer) Render(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, url)
	r.mu.Unlock()

	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if r.panics {
		panic("renderer crashed")
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.html, r.err
}

func (r *fakeRenderer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Static page</h1><script>x()</script></body></html>`))
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>" + r.Header.Get("User-Agent") + "</p>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Static(t *testing.T) {
	srv := newTestSite(t)
	renderer := &fakeRenderer{html: "<p>rendered</p>"}
	f := NewFetcher(Config{Renderer: renderer})

	before := time.Now().UTC()
	doc := f.Fetch(context.Background(), srv.URL+"/ok")

	assert.Equal(t, "Static page", doc.Content)
	assert.Equal(t, srv.URL+"/ok", doc.Source)
	assert.Equal(t, core.FetchStatic, doc.Method)
	assert.False(t, doc.FetchedAt.Before(before))
	assert.Empty(t, renderer.Calls())
}

func TestFetcher_UserAgent(t *testing.T) {
	srv := newTestSite(t)
	f := NewFetcher(Config{})

	doc := f.Fetch(context.Background(), srv.URL+"/agent")
	assert.Equal(t, Normalize(DefaultUserAgent), doc.Content)
}

func TestFetcher_NotFoundRoutesToRenderer(t *testing.T) {
	srv := newTestSite(t)
	renderer := &fakeRenderer{html: "<html><body><p>Rendered #content</p></body></html>"}
	f := NewFetcher(Config{Renderer: renderer})

	doc := f.Fetch(context.Background(), srv.URL+"/missing")

	require.Equal(t, []string{srv.URL + "/missing"}, renderer.Calls())
	assert.Equal(t, "Rendered content", doc.Content)
	assert.Equal(t, core.FetchRender, doc.Method)
	assert.False(t, doc.IsSentinel())
}

func TestFetcher_RenderFailureYieldsSentinel(t *testing.T) {
	srv := newTestSite(t)
	renderer := &fakeRenderer{err: errors.New("chrome crashed")}
	f := NewFetcher(Config{Renderer: renderer})

	doc := f.Fetch(context.Background(), srv.URL+"/forbidden")

	assert.Len(t, renderer.Calls(), 1)
	assert.Equal(t, core.SentinelContent, doc.Content)
	assert.Equal(t, srv.URL+"/forbidden", doc.Source)
	assert.False(t, doc.FetchedAt.IsZero())
	assert.True(t, doc.IsSentinel())
}

func TestFetcher_RenderDisabled(t *testing.T) {
	srv := newTestSite(t)
	f := NewFetcher(Config{})

	doc := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.True(t, doc.IsSentinel())
}

func TestFetcher_NetworkErrorSkipsRenderer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone"
	srv.Close()

	renderer := &fakeRenderer{html: "<p>never</p>"}
	f := NewFetcher(Config{Renderer: renderer})

	doc := f.Fetch(context.Background(), url)
	assert.True(t, doc.IsSentinel())
	assert.Equal(t, url, doc.Source)
	assert.Empty(t, renderer.Calls())
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := NewFetcher(Config{})
	doc := f.Fetch(context.Background(), "::not a url")
	assert.True(t, doc.IsSentinel())
	assert.Equal(t, "::not a url", doc.Source)
}

func TestFetcher_Timeout(t *testing.T) {
	srv := newTestSite(t)
	f := NewFetcher(Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	doc := f.Fetch(context.Background(), srv.URL+"/slow")

	assert.True(t, doc.IsSentinel())
	assert.Less(t, time.Since(start), time.Second)
}

// stuckRenderer blocks until released, ignoring its context.
type stuckRenderer struct {
	release chan struct{}
}

func (r *stuckRenderer) Render(_ context.Context, _ string) (string, error) {
	<-r.release
	return "<p>too late</p>", nil
}

func TestFetcher_TimeoutCoversRenderer(t *testing.T) {
	srv := newTestSite(t)
	renderer := &stuckRenderer{release: make(chan struct{})}
	defer close(renderer.release)
	f := NewFetcher(Config{Renderer: renderer, Timeout: 200 * time.Millisecond})

	start := time.Now()
	doc := f.Fetch(context.Background(), srv.URL+"/missing")

	assert.Equal(t, core.FetchSentinel, doc.Method)
	assert.Equal(t, core.SentinelContent, doc.Content)
	assert.Equal(t, srv.URL+"/missing", doc.Source)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetcher_StuckRenderDoesNotHoldBatch(t *testing.T) {
	srv := newTestSite(t)
	renderer := &stuckRenderer{release: make(chan struct{})}
	defer close(renderer.release)
	f := NewFetcher(Config{Renderer: renderer, Timeout: 200 * time.Millisecond, RenderConcurrency: 1})

	scraper, err := NewBatchScraper(f, WithConcurrency(4))
	require.NoError(t, err)
	defer scraper.Close()

	urls := []string{srv.URL + "/missing", srv.URL + "/missing?a", srv.URL + "/missing?b"}
	start := time.Now()
	docs := scraper.ScrapeAll(context.Background(), urls)

	require.Len(t, docs, len(urls))
	for i, doc := range docs {
		assert.True(t, doc.IsSentinel())
		assert.Equal(t, urls[i], doc.Source)
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetcher_RendererPanicRecovered(t *testing.T) {
	srv := newTestSite(t)
	f := NewFetcher(Config{Renderer: &fakeRenderer{panics: true}})

	var doc core.Document
	require.NotPanics(t, func() {
		doc = f.Fetch(context.Background(), srv.URL+"/missing")
	})
	assert.True(t, doc.IsSentinel())
}

func TestFetcher_RenderConcurrencyBounded(t *testing.T) {
	srv := newTestSite(t)
	renderer := &fakeRenderer{html: "<p>ok</p>", delay: 50 * time.Millisecond}
	f := NewFetcher(Config{Renderer: renderer, RenderConcurrency: 2})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			doc := f.Fetch(context.Background(), srv.URL+"/missing")
			assert.Equal(t, "ok", doc.Content)
		})
	}
	wg.Wait()

	assert.Len(t, renderer.Calls(), 8)
	assert.LessOrEqual(t, renderer.maxSeen.Load(), int32(2))
}

func TestFetcher_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>abcdefghijklmnopqrstuvwxyz</p>"))
	}))
	defer srv.Close()

	f := NewFetcher(Config{MaxBytes: 8})
	doc := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, "abcde", doc.Content)
}
