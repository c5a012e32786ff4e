package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/ingestion"
	"github.com/poiesic/itk/storage"
)

// BatchProcessor re-embeds batches of stored chunks.
type BatchProcessor struct {
	embedder ai.Embedder
	backoff  ingestion.Backoff
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder: embedder,
		backoff:  ingestion.Backoff{Attempts: maxRetries, BaseDelay: retryBaseDelay},
	}
}

// Process embeds the chunks' text and writes the normalized vectors back to col.
func (bp *BatchProcessor) Process(ctx context.Context, col storage.Collection, chunks []*core.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := bp.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.backoff.Attempts, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ingestion.ErrEmbeddingMismatch, len(chunks), len(embeddings))
	}

	for i := range chunks {
		chunks[i].Vector = ai.NormalizeVector(embeddings[i])
	}

	if err := col.Update(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	return nil
}
