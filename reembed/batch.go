package reembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
)

// BatchProcessor re-embeds a batch of chunks and writes them to the target
// collection.
type BatchProcessor struct {
	index    storage.VectorIndex
	embedder ai.Embedder
	target   string
	backoff  Backoff
	logger   *slog.Logger
}

// NewBatchProcessor creates a processor writing into target.
func NewBatchProcessor(index storage.VectorIndex, embedder ai.Embedder, target string, backoff Backoff, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		index:    index,
		embedder: embedder,
		target:   target,
		backoff:  backoff,
		logger:   logger,
	}
}

// Process embeds the chunk texts, retrying transient failures, and upserts
// the chunks with their new normalized vectors. Chunk ids are preserved.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []core.IndexedChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, bp.backoff, bp.logger, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(embeddings) != len(chunks) {
			return Permanent(fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(chunks), len(embeddings)))
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrEmbeddingCountMismatch) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.backoff.MaxAttempts, err)
	}

	out := make([]core.IndexedChunk, len(chunks))
	for i := range chunks {
		out[i] = core.IndexedChunk{
			Chunk:  chunks[i].Chunk,
			Vector: core.NormalizeVector(embeddings[i]),
		}
	}

	var written int
	err = RetryWithBackoff(ctx, bp.backoff, bp.logger, func(ctx context.Context) error {
		n, err := bp.index.Upsert(ctx, bp.target, out)
		if errors.Is(err, storage.ErrDimensionMismatch) || errors.Is(err, storage.ErrCollectionNotFound) {
			return Permanent(err)
		}
		written = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write chunks: %w", err)
	}
	return written, nil
}
