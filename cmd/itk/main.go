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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/itk"
	"github.com/poiesic/itk/config"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/reembed"
	"github.com/poiesic/itk/scheduler"
	"github.com/poiesic/itk/scrape"
	"github.com/poiesic/itk/search"
	"github.com/poiesic/itk/server"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "itk",
		Usage: "Scrape company websites into searchable vector collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"ITK_LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "scrape",
				Usage:  "Run one scrape-and-ingest cycle in the foreground",
				Action: scrapeCommand,
				Flags: append(serviceFlags(),
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N pages (0 disables)",
						Value: 10,
					},
				),
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and run scheduled scrapes",
				Action: serveCommand,
				Flags: append(serviceFlags(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address",
					},
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron schedule for scrape cycles",
					},
					&cli.BoolFlag{
						Name:  "no-schedule",
						Usage: "Only scrape when triggered over HTTP",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Query the indexed pages",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:    "company",
						Aliases: []string{"c"},
						Usage:   "Search one company's pages instead of all of them",
					},
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results",
						Value:   search.DefaultLimit,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print each search stage to stderr",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate every stored vector with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding API base URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Chunks embedded per call",
						Value: reembed.DefaultConfig().BatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: reembed.DefaultConfig().ReportInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Attempts per batch",
						Value: reembed.DefaultConfig().MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay between attempts",
						Value: reembed.DefaultConfig().RetryDelay,
					},
				},
			},
		},
	}
}

// serviceFlags are shared by commands that build a full service.
func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory",
		},
		&cli.StringFlag{
			Name:    "registry",
			Aliases: []string{"r"},
			Usage:   "Path to the company registry CSV",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of pages fetched per batch",
		},
		&cli.DurationFlag{
			Name:  "fetch-timeout",
			Usage: "Per-page fetch budget",
		},
		&cli.StringFlag{
			Name:  "browser-url",
			Usage: "DevTools URL of a running Chrome (default: launch one)",
		},
		&cli.BoolFlag{
			Name:  "no-render",
			Usage: "Disable the headless browser fallback",
		},
	}
}

// loadConfig reads the environment and applies any flags set on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	strFlags := map[string]*string{
		"db":              &cfg.DBPath,
		"registry":        &cfg.RegistryPath,
		"browser-url":     &cfg.BrowserURL,
		"addr":            &cfg.Addr,
		"schedule":        &cfg.Schedule,
		"embedding-host":  &cfg.EmbeddingHost,
		"embedding-model": &cfg.EmbeddingModel,
	}
	for name, field := range strFlags {
		if c.IsSet(name) {
			*field = c.String(name)
		}
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("fetch-timeout") {
		cfg.FetchTimeout = c.Duration("fetch-timeout")
	}
	if c.IsSet("no-render") {
		cfg.DisableRender = c.Bool("no-render")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return cfg, nil
}

func newService(cfg *config.Config, opts ...itk.ServiceOption) (*itk.Service, error) {
	aiConfig := cfg.AI()
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts = append([]itk.ServiceOption{
		itk.WithAIConfig(aiConfig),
		itk.WithFetchConfig(cfg.Fetch()),
		itk.WithConcurrency(cfg.Concurrency),
		itk.WithBrowserURL(cfg.BrowserURL),
		itk.WithLogger(slog.Default()),
	}, opts...)
	if cfg.DisableRender {
		opts = append(opts, itk.WithRenderDisabled())
	}

	svc, err := itk.NewService(cfg.DBPath, cfg.RegistryPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func scrapeCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var opts []itk.ServiceOption
	if interval := c.Int("report-interval"); interval > 0 {
		opts = append(opts, itk.WithProgress(scrape.NewProgressTracker(os.Stderr, interval)))
	}
	svc, err := newService(cfg, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(os.Stderr, "Registry: %s\n", cfg.RegistryPath)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := svc.Coordinator().Run(ctx)
	if run != nil {
		printRun(os.Stdout, run)
	}
	if err != nil {
		return fmt.Errorf("scrape cycle failed: %w", err)
	}
	return nil
}

func printRun(w io.Writer, run *core.Run) {
	fmt.Fprintf(w, "Run %s finished in %s\n", run.Id, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  URLs:         %d\n", run.URLs)
	fmt.Fprintf(w, "  Documents:    %d (%d not fetched)\n", run.Documents, run.Sentinels)
	fmt.Fprintf(w, "  Unattributed: %d\n", run.Unattributed)
	fmt.Fprintf(w, "  Entities:     %d\n", run.Entities)
	if len(run.FailedEntities) > 0 {
		fmt.Fprintf(w, "  Failed:       %s\n", strings.Join(run.FailedEntities, ", "))
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	searcher, err := svc.NewSearcher()
	if err != nil {
		return err
	}

	if !c.Bool("no-schedule") {
		sched, err := scheduler.New(cfg.Schedule, svc.Coordinator(), slog.Default())
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(cfg.Addr, server.Config{
		Cycles:   svc.Coordinator(),
		Runs:     svc.Runs(),
		Searcher: searcher,
		Gatherer: svc.Gatherer(),
		Logger:   slog.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, itk.WithRenderDisabled())
	if err != nil {
		return err
	}
	defer svc.Close()

	searcher, err := svc.NewSearcher()
	if err != nil {
		return err
	}

	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = &stderrMonitor{w: os.Stderr}
	}
	results, err := searcher.SearchWithMonitor(c.Context, query, c.String("company"), c.Int("k"), monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(os.Stdout, results)
	return nil
}

func reembedCommand(c *cli.Context) error {
	rcfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if err := rcfg.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, itk.WithRenderDisabled())
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.EmbeddingModel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.NewReembedder(rcfg, os.Stderr).Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func printResults(w io.Writer, results []*core.SearchResult) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(w, "%d: [%0.3f] %s\n   %s\n", i, hit.Score, hit.Chunk.Source, hit.Chunk.Text)
	}
}

// stderrMonitor prints each search stage.
type stderrMonitor struct {
	w io.Writer
}

func (m *stderrMonitor) Start(query, collection string) {
	fmt.Fprintf(m.w, "Searching %s for %q\n", collection, query)
}

func (m *stderrMonitor) AfterVectorSearch(candidates []*core.SearchResult) {
	fmt.Fprintf(m.w, "Vector search returned %d candidates\n", len(candidates))
}

func (m *stderrMonitor) VerbatimHit(result *core.SearchResult) {
	fmt.Fprintf(m.w, "Verbatim match: %s\n", result.Chunk.Source)
}

func (m *stderrMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "Returning %d results\n\n", len(results))
}

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
