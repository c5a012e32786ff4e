package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/itk/core"
)

// DefaultConcurrency is the batch size and worker pool size.
const DefaultConcurrency = 100

// PageFetcher produces one document per URL and never fails.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) core.Document
}

// BatchScraper fetches many URLs through a bounded worker pool.
// URLs are processed in batches of the concurrency limit; a batch starts
// only after the previous one has fully completed.
type BatchScraper struct {
	fetcher     PageFetcher
	pool        *ants.Pool
	concurrency int
	progress    Progress
	logger      *slog.Logger
}

// Option configures a BatchScraper.
type Option func(*BatchScraper) error

// WithConcurrency sets the batch size and worker pool size.
// Default is 100.
func WithConcurrency(n int) Option {
	return func(s *BatchScraper) error {
		if n < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidConcurrency, n)
		}
		s.concurrency = n
		return nil
	}
}

// WithProgress reports progress to p.
func WithProgress(p Progress) Option {
	return func(s *BatchScraper) error {
		s.progress = p
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *BatchScraper) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewBatchScraper creates a BatchScraper. Call Close to release its pool.
func NewBatchScraper(fetcher PageFetcher, opts ...Option) (*BatchScraper, error) {
	s := &BatchScraper{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "batch-scraper")

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// Close releases the worker pool.
func (s *BatchScraper) Close() {
	s.pool.Release()
}

// ScrapeAll returns exactly one document per URL, at the URL's index.
// Failed fetches become sentinel documents. Once ctx is cancelled no new
// batch starts, and every remaining URL gets a sentinel document.
func (s *BatchScraper) ScrapeAll(ctx context.Context, urls []string) []core.Document {
	docs := make([]core.Document, len(urls))
	if s.progress != nil {
		s.progress.Start(len(urls))
		defer s.progress.Finish()
	}

	var done atomic.Int64
	for start := 0; start < len(urls); start += s.concurrency {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("scrape cancelled, skipping remaining urls", "remaining", len(urls)-start, "err", err)
			for i := start; i < len(urls); i++ {
				docs[i] = core.NewSentinelDocument(urls[i])
			}
			break
		}

		end := min(start+s.concurrency, len(urls))
		s.logger.Debug("scraping batch", "from", start, "to", end, "total", len(urls))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			err := s.pool.Submit(func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("fetch panicked", "url", urls[i], "panic", r)
						docs[i] = core.NewSentinelDocument(urls[i])
					}
					s.report(&done)
				}()
				docs[i] = s.fetcher.Fetch(ctx, urls[i])
			})
			if err != nil {
				s.logger.Error("failed to submit fetch", "url", urls[i], "err", err)
				docs[i] = core.NewSentinelDocument(urls[i])
				s.report(&done)
				wg.Done()
			}
		}
		wg.Wait()
	}

	return docs
}

func (s *BatchScraper) report(done *atomic.Int64) {
	n := done.Add(1)
	if s.progress != nil {
		s.progress.Update(int(n))
	}
}
