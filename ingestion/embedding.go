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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/chunking"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
)

// DefaultBatchSize is the number of chunk texts sent per embedding call.
const DefaultBatchSize = 32

// Indexer embeds chunks and writes them to a vector index collection.
// Embedding batches run concurrently on a worker pool.
type Indexer struct {
	index      storage.VectorIndex
	embedder   ai.Embedder
	collection string
	pool       *ants.Pool
	batchSize  int
	logger     *slog.Logger
}

func defaultPoolSize() int {
	return max(runtime.NumCPU()/2, 1)
}

func newIndexer(index storage.VectorIndex, embedder ai.Embedder, collection string, poolSize, batchSize int, logger *slog.Logger) (*Indexer, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(max(poolSize, 1))
	if err != nil {
		return nil, err
	}
	return &Indexer{
		index:      index,
		embedder:   embedder,
		collection: collection,
		pool:       pool,
		batchSize:  max(batchSize, 1),
		logger:     logger.With("processor", "embeddings"),
	}, nil
}

// AddChunks embeds chunks and upserts them in their given order. Missing
// chunk ids are filled in first. It returns the number of chunks stored.
func (ix *Indexer) AddChunks(ctx context.Context, chunks []core.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	indexed, err := ix.vectorize(ctx, chunks)
	if err != nil {
		return 0, err
	}
	return ix.write(ctx, indexed)
}

// ReplaceSource swaps every stored chunk of source for chunks. The new
// chunks are embedded before anything is removed, so an embedding failure
// leaves the previous version searchable. An empty chunks only removes.
// It returns the number of chunks stored.
func (ix *Indexer) ReplaceSource(ctx context.Context, source string, chunks []core.Chunk) (int, error) {
	var indexed []core.IndexedChunk
	if len(chunks) > 0 {
		var err error
		if indexed, err = ix.vectorize(ctx, chunks); err != nil {
			return 0, err
		}
	}

	removed, err := ix.index.DeleteBySource(ctx, ix.collection, source)
	if err != nil {
		ix.logger.Error("error removing stale chunks", "source", source, "err", err)
		return 0, err
	}
	if removed > 0 {
		ix.logger.Debug("removed stale chunks", "source", source, "count", removed)
	}
	if len(indexed) == 0 {
		return 0, nil
	}
	return ix.write(ctx, indexed)
}

func (ix *Indexer) vectorize(ctx context.Context, chunks []core.Chunk) ([]core.IndexedChunk, error) {
	chunks = chunking.AssignIDs(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		ix.logger.Error("error generating embeddings", "chunks", len(chunks), "err", err)
		return nil, err
	}

	indexed := make([]core.IndexedChunk, len(chunks))
	for i := range chunks {
		indexed[i] = core.IndexedChunk{Chunk: chunks[i], Vector: vectors[i]}
	}
	return indexed, nil
}

func (ix *Indexer) write(ctx context.Context, indexed []core.IndexedChunk) (int, error) {
	n, err := ix.index.Upsert(ctx, ix.collection, indexed)
	if err != nil {
		ix.logger.Error("error writing chunks", "collection", ix.collection, "err", err)
		return 0, err
	}
	return n, nil
}

// embed splits texts into batches, embeds them on the pool and reassembles
// the vectors in input order. The first failing batch cancels the rest and
// its error is returned unchanged.
func (ix *Indexer) embed(parent context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += ix.batchSize {
		end := min(start+ix.batchSize, len(texts))
		batch := texts[start:end]
		offset := start

		wg.Add(1)
		err := ix.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			ix.logger.Debug("embedding batch", "offset", offset, "size", len(batch))
			out, err := ix.embedder.EmbedTexts(ctx, batch)
			if err != nil {
				fail(err)
				return
			}
			if len(out) != len(batch) {
				fail(fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingCountMismatch, len(batch), len(out)))
				return
			}
			copy(vectors[offset:], out)
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Release stops the worker pool.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}
