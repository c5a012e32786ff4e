// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package itk

import (
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/ai/openai"
	"github.com/poiesic/itk/ingestion"
	"github.com/poiesic/itk/metrics"
	"github.com/poiesic/itk/reembed"
	"github.com/poiesic/itk/scrape"
	"github.com/poiesic/itk/search"
	"github.com/poiesic/itk/storage"
	"github.com/poiesic/itk/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Service owns the long-lived components of one itk process: the badger
// store, the embedder, the scraper, and the ingestion coordinator. It is
// built once and shared by the server, the scheduler, and CLI commands.
type Service struct {
	backend     *badger.Backend
	index       *badger.Index
	runs        *badger.RunRepository
	embedder    ai.Embedder
	renderer    *scrape.RodRenderer
	scraper     *scrape.BatchScraper
	coordinator *ingestion.Coordinator
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig       *ai.Config
	embedder       ai.Embedder
	fetch          scrape.Config
	concurrency    int
	browserURL     string
	renderDisabled bool
	inMemory       bool
	progress       scrape.Progress
	ingestOpts     []ingestion.Option
	logger         *slog.Logger
}

// WithAIConfig sets the embedding endpoint configuration.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = cfg
	}
}

// WithEmbedder uses embedder instead of building one from the AI config.
func WithEmbedder(embedder ai.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = embedder
	}
}

// WithFetchConfig sets the per-page fetch configuration.
// Renderer, Logger, and Metrics are filled in by the service.
func WithFetchConfig(cfg scrape.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.fetch = cfg
	}
}

// WithConcurrency sets the scrape batch size.
func WithConcurrency(n int) ServiceOption {
	return func(o *serviceOptions) {
		o.concurrency = n
	}
}

// WithBrowserURL connects the renderer to a running Chrome instead of launching one.
func WithBrowserURL(url string) ServiceOption {
	return func(o *serviceOptions) {
		o.browserURL = url
	}
}

// WithRenderDisabled turns off the headless-browser fallback.
func WithRenderDisabled() ServiceOption {
	return func(o *serviceOptions) {
		o.renderDisabled = true
	}
}

// WithInMemory keeps the store in memory; the database path is ignored.
func WithInMemory() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithProgress reports scrape progress.
func WithProgress(p scrape.Progress) ServiceOption {
	return func(o *serviceOptions) {
		o.progress = p
	}
}

// WithIngestionOptions passes extra options to the coordinator.
func WithIngestionOptions(opts ...ingestion.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.ingestOpts = append(o.ingestOpts, opts...)
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the store at dbPath and wires every component.
// The entity registry at registryPath is read at the start of each cycle.
func NewService(dbPath, registryPath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig:    ai.DefaultConfig(),
		concurrency: scrape.DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	embedder := options.embedder
	if embedder == nil {
		var err error
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	backend, err := badger.OpenBackend(dbPath, options.inMemory)
	if err != nil {
		return nil, err
	}

	index, err := badger.NewIndex(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := &Service{
		backend:  backend,
		index:    index,
		runs:     badger.NewRunRepository(backend),
		embedder: embedder,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.New(s.registry)

	fetchCfg := options.fetch
	fetchCfg.Logger = logger
	fetchCfg.Metrics = s.metrics
	fetchCfg.Renderer = nil
	if !options.renderDisabled {
		s.renderer = scrape.NewRodRenderer(scrape.RodConfig{
			ControlURL: options.browserURL,
			Logger:     logger,
		})
		fetchCfg.Renderer = s.renderer
	}

	scraperOpts := []scrape.Option{
		scrape.WithConcurrency(options.concurrency),
		scrape.WithLogger(logger),
	}
	if options.progress != nil {
		scraperOpts = append(scraperOpts, scrape.WithProgress(options.progress))
	}
	s.scraper, err = scrape.NewBatchScraper(scrape.NewFetcher(fetchCfg), scraperOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	ingestOpts := append([]ingestion.Option{
		ingestion.WithRegistryPath(registryPath),
		ingestion.WithRuns(s.runs),
		ingestion.WithMetrics(s.metrics),
		ingestion.WithLogger(logger),
	}, options.ingestOpts...)
	s.coordinator, err = ingestion.NewCoordinator(index, embedder, s.scraper, ingestOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Close stops any running cycle and releases every component.
func (s *Service) Close() error {
	var errs []error
	if s.coordinator != nil {
		s.coordinator.Close()
	}
	if s.scraper != nil {
		s.scraper.Close()
	}
	if s.renderer != nil {
		if err := s.renderer.Close(); err != nil {
			s.logger.Error("error closing renderer", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.index.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
		errs = append(errs, err)
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) Coordinator() *ingestion.Coordinator {
	return s.coordinator
}

func (s *Service) Index() storage.VectorIndex {
	return s.index
}

func (s *Service) Runs() storage.RunRepository {
	return s.runs
}

// Gatherer exposes the service's metrics registry for scraping.
func (s *Service) Gatherer() prometheus.Gatherer {
	return s.registry
}

func (s *Service) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{search.WithLogger(s.logger)}, opts...)
	return search.NewSearcher(s.index, s.embedder, opts...)
}

// NewReembedder returns a reembedder that rewrites every stored vector with
// the service's embedder. Progress is written to progress.
func (s *Service) NewReembedder(cfg *reembed.Config, progress io.Writer) *reembed.Reembedder {
	return reembed.NewReembedder(s.index, s.embedder, cfg, progress)
}
