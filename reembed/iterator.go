package reembed

import (
	"context"

	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
)

const (
	// DefaultBatchSize is the default number of chunks read and embedded
	// per batch.
	DefaultBatchSize = 100
)

// ChunkIterator pages through a collection in insertion order.
type ChunkIterator struct {
	index      storage.VectorIndex
	collection string
	batchSize  int
}

// NewChunkIterator creates an iterator over collection.
func NewChunkIterator(index storage.VectorIndex, collection string, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{
		index:      index,
		collection: collection,
		batchSize:  batchSize,
	}
}

// ForEach calls fn with successive batches until the collection is
// exhausted, fn fails or ctx ends.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]core.IndexedChunk) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, next, err := it.index.Scan(ctx, it.collection, cursor, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}
