package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/core"
)

const (
	// DefaultBatchSize is the number of chunk texts sent to the embedder per call.
	DefaultBatchSize = 64
	// DefaultMaxAttempts bounds the embedding attempts per batch.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first retry delay; it doubles on each retry.
	DefaultBaseDelay = 500 * time.Millisecond
)

// batchEmbedder turns chunks into indexed records with normalized vectors.
type batchEmbedder struct {
	embedder  ai.Embedder
	batchSize int
	backoff   Backoff
	logger    *slog.Logger
}

func (b *batchEmbedder) embed(ctx context.Context, chunks []core.Chunk) ([]*core.IndexedChunk, error) {
	records := make([]*core.IndexedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := min(start+b.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		var vectors [][]float32
		err := b.backoff.Do(ctx, func(ctx context.Context) error {
			var err error
			vectors, err = b.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(texts), len(vectors))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}

		for i, chunk := range batch {
			records = append(records, &core.IndexedChunk{
				Text:      chunk.Text,
				Source:    chunk.Source,
				FetchedAt: chunk.FetchedAt,
				Index:     chunk.Index,
				Vector:    ai.NormalizeVector(vectors[i]),
			})
		}
		b.logger.Debug("embedded batch", "from", start, "to", end, "total", len(chunks))
	}
	return records, nil
}

// cloneRecords copies records so a second collection can assign its own IDs.
func cloneRecords(records []*core.IndexedChunk) []*core.IndexedChunk {
	clones := make([]*core.IndexedChunk, len(records))
	for i, r := range records {
		c := *r
		c.Id = 0
		c.Collection = ""
		c.InsertedAt = time.Time{}
		clones[i] = &c
	}
	return clones
}
