package storage

import (
	"context"

	"github.com/poiesic/ragstudio/core"
)

// DistanceCosine is the only similarity function collections are created with.
const DistanceCosine = "Cosine"

// VectorIndex stores indexed chunks in named collections and answers
// nearest-neighbour queries. Implementations must be thread-safe and support
// concurrent access. Writes are eventually visible to concurrent searches;
// no isolation is promised.
type VectorIndex interface {
	// EnsureCollection creates the named collection with cosine similarity if
	// it does not exist. Calling it again with the same dimension is a no-op.
	// Returns ErrDimensionMismatch if the collection exists with another
	// dimension and ErrInvalidDimension if dim <= 0.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert stores chunks keyed by chunk id, replacing any previous chunk with
	// the same id. Every vector must match the collection dimension.
	// Returns the number of chunks stored.
	Upsert(ctx context.Context, name string, chunks []core.IndexedChunk) (int, error)

	// Search returns up to k chunks ordered by cosine similarity to vector,
	// highest first. Ties keep insertion order. A missing or empty
	// collection yields an empty result, not an error.
	Search(ctx context.Context, name string, vector []float32, k int) ([]core.ScoredCandidate, error)

	// Count returns the number of chunks in the collection.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Count(ctx context.Context, name string) (int, error)

	// Info describes the collection.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Info(ctx context.Context, name string) (core.CollectionInfo, error)

	// Collections lists every collection name in lexical order.
	Collections(ctx context.Context) ([]string, error)

	// Scan returns up to limit chunks in insertion order, starting after the
	// cursor. An empty cursor starts from the beginning. The returned cursor
	// is empty once the collection is exhausted.
	Scan(ctx context.Context, name string, cursor string, limit int) ([]core.IndexedChunk, string, error)

	// DeleteBySource removes every chunk whose Source equals source and
	// returns how many were removed. A missing collection removes nothing
	// and is not an error.
	DeleteBySource(ctx context.Context, name string, source string) (int, error)

	// DropCollection deletes the collection and every chunk in it.
	// Dropping a missing collection is not an error.
	DropCollection(ctx context.Context, name string) error

	// Close releases resources held by the index.
	Close() error
}
