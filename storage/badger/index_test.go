package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "rag_docs"

func newTestIndex(t *testing.T) storage.VectorIndex {
	t.Helper()
	idx, err := NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func chunk(id string, vec ...float32) core.IndexedChunk {
	return core.IndexedChunk{
		Chunk:  core.Chunk{ChunkID: id, Text: "text of " + id, Source: "src.txt"},
		Vector: vec,
	}
}

func TestIndex_EnsureCollection(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	t.Run("creates and is idempotent", func(t *testing.T) {
		require.NoError(t, idx.EnsureCollection(ctx, testCollection, 3))
		require.NoError(t, idx.EnsureCollection(ctx, testCollection, 3))

		info, err := idx.Info(ctx, testCollection)
		require.NoError(t, err)
		assert.Equal(t, 3, info.Dimension)
		assert.Equal(t, storage.DistanceCosine, info.Distance)
		assert.Equal(t, 0, info.Count)
	})

	t.Run("dimension mismatch fails loudly", func(t *testing.T) {
		err := idx.EnsureCollection(ctx, testCollection, 4)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
		assert.Contains(t, err.Error(), "3")
		assert.Contains(t, err.Error(), "4")
	})

	t.Run("invalid dimension", func(t *testing.T) {
		err := idx.EnsureCollection(ctx, "other", 0)
		assert.ErrorIs(t, err, storage.ErrInvalidDimension)
	})

	t.Run("invalid name", func(t *testing.T) {
		assert.ErrorIs(t, idx.EnsureCollection(ctx, "", 3), storage.ErrInvalidCollectionName)
		assert.ErrorIs(t, idx.EnsureCollection(ctx, "a:b", 3), storage.ErrInvalidCollectionName)
	})
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	n, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
		chunk("east", 1, 0),
		chunk("north", 0, 1),
		chunk("northeast", 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("ranks by cosine similarity", func(t *testing.T) {
		hits, err := idx.Search(ctx, testCollection, []float32{2, 0.1}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "east", hits[0].ChunkID)
		assert.Equal(t, "northeast", hits[1].ChunkID)
		assert.Equal(t, "north", hits[2].ChunkID)
		assert.InDelta(t, 0.9988, hits[0].Score, 0.001)
		assert.Equal(t, "src.txt", hits[0].Source)
	})

	t.Run("truncates to k", func(t *testing.T) {
		hits, err := idx.Search(ctx, testCollection, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "east", hits[0].ChunkID)
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, []float32{1, 0, 0}, 3)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("missing collection is empty", func(t *testing.T) {
		hits, err := idx.Search(ctx, "missing", []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})
}

func TestIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	var chunks []core.IndexedChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("c%02d", i), 1, 1))
	}
	_, err := idx.Upsert(ctx, testCollection, chunks)
	require.NoError(t, err)

	hits, err := idx.Search(ctx, testCollection, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 10)
	for i, h := range hits {
		assert.Equal(t, fmt.Sprintf("c%02d", i), h.ChunkID)
	}
}

func TestIndex_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0), chunk("b", 0, 1)})
	require.NoError(t, err)

	replacement := chunk("a", 0, 1)
	replacement.Text = "new text"
	_, err = idx.Upsert(ctx, testCollection, []core.IndexedChunk{replacement})
	require.NoError(t, err)

	count, err := idx.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := idx.Search(ctx, testCollection, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Equal scores: "a" keeps its original, earlier position.
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "new text", hits[0].Text)
}

func TestIndex_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	other := chunk("keep", 1, 0)
	other.Source = "other.txt"
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
		chunk("a", 1, 0), other, chunk("b", 0, 1),
	})
	require.NoError(t, err)

	n, err := idx.DeleteBySource(ctx, testCollection, "src.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Search(ctx, testCollection, []float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "keep", hits[0].ChunkID)

	// A removed id can be written again and lands after the survivors.
	_, err = idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0)})
	require.NoError(t, err)
	batch, _, err := idx.Scan(ctx, testCollection, "", 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "keep", batch[0].ChunkID)
	assert.Equal(t, "a", batch[1].ChunkID)

	n, err = idx.DeleteBySource(ctx, testCollection, "never-loaded.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = idx.DeleteBySource(ctx, "missing", "src.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = idx.DeleteBySource(ctx, "", "src.txt")
	assert.ErrorIs(t, err, storage.ErrInvalidCollectionName)
}

func TestIndex_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	t.Run("missing collection", func(t *testing.T) {
		_, err := idx.Upsert(ctx, "missing", []core.IndexedChunk{chunk("a", 1, 0)})
		assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	})

	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	t.Run("wrong dimension", func(t *testing.T) {
		_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0, 0)})
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})

	t.Run("missing chunk id", func(t *testing.T) {
		_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("", 1, 0)})
		assert.ErrorIs(t, err, core.ErrEmptyChunkID)
	})

	t.Run("nothing written on validation failure", func(t *testing.T) {
		_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("ok", 1, 0), chunk("bad", 1)})
		require.Error(t, err)
		count, err := idx.Count(ctx, testCollection)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("empty input", func(t *testing.T) {
		n, err := idx.Upsert(ctx, testCollection, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestIndex_Scan(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	var chunks []core.IndexedChunk
	for i := 0; i < 7; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("c%d", i), float32(i+1), 1))
	}
	_, err := idx.Upsert(ctx, testCollection, chunks)
	require.NoError(t, err)

	var (
		seen   []string
		cursor string
		pages  int
	)
	for {
		batch, next, err := idx.Scan(ctx, testCollection, cursor, 3)
		require.NoError(t, err)
		for _, c := range batch {
			seen = append(seen, c.ChunkID)
			assert.InDelta(t, 1.0, core.DotProduct(c.Vector, c.Vector), 1e-5, "stored vectors are normalised")
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6"}, seen)
	assert.Equal(t, 3, pages)

	_, _, err = idx.Scan(ctx, testCollection, "not-a-number", 3)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_CollectionsAndDrop(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.EnsureCollection(ctx, "b_docs", 2))
	require.NoError(t, idx.EnsureCollection(ctx, "a_docs", 2))
	_, err := idx.Upsert(ctx, "a_docs", []core.IndexedChunk{chunk("x", 1, 0)})
	require.NoError(t, err)

	names, err := idx.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_docs", "b_docs"}, names)

	require.NoError(t, idx.DropCollection(ctx, "a_docs"))
	require.NoError(t, idx.DropCollection(ctx, "never_existed"))

	_, err = idx.Count(ctx, "a_docs")
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	// Recreating with a new dimension works after a drop.
	require.NoError(t, idx.EnsureCollection(ctx, "a_docs", 3))
	hits, err := idx.Search(ctx, "a_docs", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_ConcurrentUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk(fmt.Sprintf("w%d-%d", w, i), 1, float32(i))})
				assert.NoError(t, err)
				_, err = idx.Search(ctx, testCollection, []float32{1, 0}, 5)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	count, err := idx.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}

func TestIndex_Closed(t *testing.T) {
	idx, err := NewMemoryIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), testCollection, []float32{1}, 1)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = idx.DeleteBySource(context.Background(), testCollection, "src.txt")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
