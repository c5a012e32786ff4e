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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded per call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      64,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Validate rejects non-positive sizes.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	return nil
}

// Reembedder rewrites the vector of every stored chunk in every collection.
type Reembedder struct {
	index     storage.VectorIndex
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(index storage.VectorIndex, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reembedder{
		index:     index,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embedder, config.MaxRetries, config.RetryDelay),
	}
}

// Run reembeds every collection in name order.
func (r *Reembedder) Run(ctx context.Context) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	names, err := r.index.Collections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	collections := make([]storage.Collection, 0, len(names))
	total := 0
	for _, name := range names {
		col, err := r.index.Collection(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to open collection %q: %w", name, err)
		}
		n, err := col.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count collection %q: %w", name, err)
		}
		collections = append(collections, col)
		total += n
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in database (%d collections)\n", len(names))
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks in %d collections (batch size: %d)\n",
		total, len(collections), r.config.BatchSize)

	start := time.Now()
	processed, lastReported := 0, 0
	for _, col := range collections {
		err := col.Scan(ctx, r.config.BatchSize, func(batch []*core.IndexedChunk) error {
			if err := r.processor.Process(ctx, col, batch); err != nil {
				return fmt.Errorf("failed to process batch in %s: %w", col.Name(), err)
			}
			processed += len(batch)
			if processed-lastReported >= r.config.ReportInterval || processed == total {
				fmt.Fprintf(r.progress, "\rReembedded: %d/%d (%.1f%%)", processed, total, float64(processed)/float64(total)*100)
				lastReported = processed
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(r.progress)
			return err
		}
	}

	elapsed := time.Since(start)
	fmt.Fprintln(r.progress)
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	return nil
}
