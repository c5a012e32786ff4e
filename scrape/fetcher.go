package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/metrics"
	"golang.org/x/sync/semaphore"
)

// DefaultUserAgent is sent with every static request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config configures a Fetcher.
type Config struct {
	Timeout  time.Duration // Per-URL budget covering both tiers. Default: 30s.
	MaxBytes int64         // Max response body size. Default: 10MB.
	// UserAgent sent with static requests.
	UserAgent string
	// RenderConcurrency bounds simultaneous browser renders. Default: 4.
	RenderConcurrency int64
	// Client performs static requests. Default: a client without its own timeout.
	Client *http.Client
	// Renderer handles non-200 responses. Nil disables the fallback.
	Renderer Renderer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RenderConcurrency <= 0 {
		c.RenderConcurrency = 4
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher retrieves one page with a static GET and a render fallback.
type Fetcher struct {
	cfg       Config
	renderSem *semaphore.Weighted
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		cfg:       cfg,
		renderSem: semaphore.NewWeighted(cfg.RenderConcurrency),
		logger:    cfg.Logger.With("component", "fetcher"),
	}
}

// Fetch returns the cleaned text of url. It never fails: when neither tier
// produces a page before the timeout the result is a sentinel document.
// The deadline holds even if a tier ignores its context.
func (f *Fetcher) Fetch(ctx context.Context, url string) (doc core.Document) {
	start := time.Now()
	defer func() {
		f.cfg.Metrics.ObserveFetch(doc.Method.String(), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	type result struct {
		text   string
		method core.FetchMethod
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("%w: %v", ErrFetchPanicked, r)}
			}
			done <- res
		}()
		res.text, res.method, res.err = f.fetch(ctx, url)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			f.logger.Error("both fetch methods failed", "url", url, "err", res.err)
			return core.NewSentinelDocument(url)
		}
		return core.Document{
			Content:   res.text,
			Source:    url,
			FetchedAt: time.Now().UTC(),
			Method:    res.method,
		}
	case <-ctx.Done():
		f.logger.Error("fetch timed out", "url", url, "timeout", f.cfg.Timeout, "err", ctx.Err())
		return core.NewSentinelDocument(url)
	}
}

func (f *Fetcher) fetch(ctx context.Context, url string) (string, core.FetchMethod, error) {
	status, body, err := f.get(ctx, url)
	if err != nil {
		return "", 0, err
	}

	if status == http.StatusOK {
		text, err := ExtractText(bytes.NewReader(body))
		if err != nil {
			return "", 0, err
		}
		return text, core.FetchStatic, nil
	}

	f.logger.Debug("static fetch not ok, rendering", "url", url, "status", status)
	page, err := f.render(ctx, url)
	if err != nil {
		return "", 0, fmt.Errorf("render after http %d: %w", status, err)
	}
	text, err := ExtractText(strings.NewReader(page))
	if err != nil {
		return "", 0, err
	}
	return text, core.FetchRender, nil
}

// get performs the static request. The body is only read for 200 responses.
func (f *Fetcher) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, error) {
	if f.cfg.Renderer == nil {
		return "", ErrRenderDisabled
	}
	if err := f.renderSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.renderSem.Release(1)

	return f.cfg.Renderer.Render(ctx, url)
}
