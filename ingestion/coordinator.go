package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/chunking"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/metrics"
	"github.com/poiesic/itk/registry"
	"github.com/poiesic/itk/storage"
)

// Scraper fetches one document per URL.
type Scraper interface {
	ScrapeAll(ctx context.Context, urls []string) []core.Document
}

// Coordinator runs scrape cycles and ingests their documents.
type Coordinator struct {
	index        storage.VectorIndex
	scraper      Scraper
	runs         storage.RunRepository
	registryPath string
	splitter     *chunking.Splitter
	embedder     *batchEmbedder
	metrics      *metrics.Metrics
	logger       *slog.Logger

	pool    *ants.Pool
	running atomic.Bool
	pending sync.WaitGroup
	base    context.Context
	cancel  context.CancelFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithRegistryPath sets the CSV file read at the start of every cycle.
func WithRegistryPath(path string) Option {
	return func(c *Coordinator) error {
		c.registryPath = path
		return nil
	}
}

// WithRuns persists a summary of every cycle.
func WithRuns(runs storage.RunRepository) Option {
	return func(c *Coordinator) error {
		c.runs = runs
		return nil
	}
}

// WithSplitter replaces the default chunk splitter.
func WithSplitter(splitter *chunking.Splitter) Option {
	return func(c *Coordinator) error {
		if splitter != nil {
			c.splitter = splitter
		}
		return nil
	}
}

// WithBatchSize sets how many chunk texts are embedded per call.
func WithBatchSize(size int) Option {
	return func(c *Coordinator) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}
		c.embedder.batchSize = size
		return nil
	}
}

// WithRetry sets the embedding retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Coordinator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.embedder.backoff.Attempts = maxAttempts
		c.embedder.backoff.BaseDelay = baseDelay
		return nil
	}
}

// WithMetrics records cycle and ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) error {
		c.metrics = m
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a Coordinator. Call Close to stop background cycles.
func NewCoordinator(index storage.VectorIndex, embedder ai.Embedder, scraper Scraper, opts ...Option) (*Coordinator, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if scraper == nil {
		return nil, ErrScraperRequired
	}

	splitter, err := chunking.NewSplitter()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		index:    index,
		scraper:  scraper,
		splitter: splitter,
		embedder: &batchEmbedder{
			embedder:  embedder,
			batchSize: DefaultBatchSize,
			backoff:   DefaultBackoff(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "coordinator")
	c.embedder.logger = c.logger
	c.embedder.backoff.Logger = c.logger

	// A single worker keeps background cycles from overlapping.
	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	c.base, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Run executes one full cycle: load the registry, scrape, group, ingest, and
// persist the run summary. The returned run is populated even when ingestion
// fails; the error is an *Error listing the failed entities.
func (c *Coordinator) Run(ctx context.Context) (*core.Run, error) {
	run := &core.Run{
		Id:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With("run", run.Id)
	logger.Info("scrape cycle started", "registry", c.registryPath)

	reg := registry.LoadOrEmpty(c.registryPath, logger)
	urls := reg.URLs()
	run.URLs = len(urls)

	docs := c.scraper.ScrapeAll(ctx, urls)
	run.Documents = len(docs)
	for _, doc := range docs {
		if doc.IsSentinel() {
			run.Sentinels++
		}
	}

	groups, unattributed := registry.NewResolver(reg, logger, c.metrics).Group(docs)
	run.Unattributed = unattributed
	run.Entities = len(groups)

	err := c.Ingest(ctx, groups)
	if err != nil {
		run.Error = err.Error()
		var ingestErr *Error
		if errors.As(err, &ingestErr) {
			run.FailedEntities = ingestErr.Entities()
		}
	}
	run.FinishedAt = time.Now().UTC()

	if c.runs != nil {
		if saveErr := c.runs.SaveRun(context.WithoutCancel(ctx), run); saveErr != nil {
			logger.Error("failed to save run summary", "err", saveErr)
			err = errors.Join(err, fmt.Errorf("save run: %w", saveErr))
		}
	}

	duration := run.FinishedAt.Sub(run.StartedAt)
	c.metrics.ObserveCycle(run.Succeeded(), duration)
	logger.Info("scrape cycle finished",
		"urls", run.URLs,
		"documents", run.Documents,
		"sentinels", run.Sentinels,
		"unattributed", run.Unattributed,
		"entities", run.Entities,
		"failed", len(run.FailedEntities),
		"duration", duration)

	return run, err
}

// Trigger starts Run in the background and returns immediately. It returns
// ErrCycleInProgress while an earlier cycle is still running. The cycle keeps
// ctx's values but not its cancellation; Close cancels it.
func (c *Coordinator) Trigger(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.base, cancel)

	c.pending.Add(1)
	err := c.pool.Submit(func() {
		defer c.pending.Done()
		defer c.running.Store(false)
		defer cancel()
		defer stop()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("scrape cycle panicked", "panic", r)
			}
		}()

		if _, err := c.Run(runCtx); err != nil {
			c.logger.Error("scrape cycle failed", "err", err)
		}
	})
	if err != nil {
		stop()
		cancel()
		c.running.Store(false)
		c.pending.Done()
		return fmt.Errorf("submit scrape cycle: %w", err)
	}
	return nil
}

// Running reports whether a triggered cycle is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Wait blocks until the triggered cycle, if any, finishes.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// Close cancels any triggered cycle, waits for it, and releases the pool.
func (c *Coordinator) Close() {
	c.cancel()
	c.pending.Wait()
	c.pool.Release()
}

// Ingest writes every group to its entity collection and to the aggregate
// collection. Entities are ingested concurrently and independently; the
// returned *Error lists every entity that failed once all have finished.
func (c *Coordinator) Ingest(ctx context.Context, groups registry.Groups) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []EntityFailure
	)
	fail := func(entity string, err error) {
		c.logger.Error("entity ingestion failed", "entity", entity, "err", err)
		c.metrics.ObserveIngestFailure()
		mu.Lock()
		failures = append(failures, EntityFailure{Entity: entity, Err: err})
		mu.Unlock()
	}

	for entity, docs := range groups {
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					fail(entity, fmt.Errorf("%w: %v", ErrEntityPanicked, r))
				}
			}()
			if err := c.ingestEntity(ctx, entity, docs); err != nil {
				fail(entity, err)
			}
		})
	}
	wg.Wait()

	if len(failures) == 0 {
		return nil
	}
	return newError(failures)
}

func (c *Coordinator) ingestEntity(ctx context.Context, entity string, docs []core.Document) error {
	logger := c.logger.With("entity", entity)

	collection, err := c.index.GetOrCreate(ctx, core.CollectionName(entity))
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	live := make([]core.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.IsSentinel() {
			continue
		}
		if err := core.ValidateDocument(&doc); err != nil {
			logger.Warn("skipping invalid document", "url", doc.Source, "err", err)
			continue
		}
		live = append(live, doc)
	}

	chunks := c.splitter.Split(live)
	if len(chunks) == 0 {
		logger.Debug("no content to ingest", "documents", len(docs))
		return nil
	}

	records, err := c.embedder.embed(ctx, chunks)
	if err != nil {
		return err
	}

	if _, err := collection.Add(ctx, records...); err != nil {
		return fmt.Errorf("add to %s: %w", collection.Name(), err)
	}
	c.metrics.ObserveChunks(metrics.ScopeEntity, len(records))

	aggregate, err := c.index.GetOrCreate(ctx, core.CollectionName(core.AggregateEntity))
	if err != nil {
		return fmt.Errorf("open aggregate collection: %w", err)
	}
	if _, err := aggregate.Add(ctx, cloneRecords(records)...); err != nil {
		return fmt.Errorf("add to %s: %w", aggregate.Name(), err)
	}
	c.metrics.ObserveChunks(metrics.ScopeAggregate, len(records))

	logger.Info("entity ingested", "documents", len(live), "chunks", len(records))
	return nil
}
