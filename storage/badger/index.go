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


package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
)

// maxChunksPerTx bounds how many chunks a single write transaction carries.
const maxChunksPerTx = 256

// Index implements storage.VectorIndex on BadgerDB. Vectors are normalised
// when written so cosine similarity reduces to a dot product at query time.
type Index struct {
	backend *Backend
	owned   bool
	logger  *slog.Logger

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// NewIndex opens (or creates) an index stored under path.
//
// Returns storage.VectorIndex interface to enforce abstraction.
func NewIndex(path string, opts ...Option) (storage.VectorIndex, error) {
	idx := &Index{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	backend, err := OpenBackend(path, false, idx.logger)
	if err != nil {
		return nil, err
	}
	return newIndex(backend, true, idx.logger), nil
}

// NewIndexWithBackend creates an index on an already open backend. The
// caller keeps ownership of the backend and must close it.
func NewIndexWithBackend(backend *Backend, opts ...Option) (storage.VectorIndex, error) {
	idx := &Index{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	return newIndex(backend, false, idx.logger), nil
}

func newIndex(backend *Backend, owned bool, logger *slog.Logger) *Index {
	return &Index{
		backend: backend,
		owned:   owned,
		logger:  logger.With("component", "badger-index"),
		seqs:    make(map[string]*badger.Sequence),
	}
}

func (i *Index) check(name string) error {
	if i.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if !validCollectionName(name) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}
	return nil
}

// readMeta loads collection metadata, returning nil if the collection is absent.
func readMeta(tx *badger.Txn, name string) (*storage.CollectionMeta, error) {
	item, err := tx.Get(makeMetaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta *storage.CollectionMeta
	err = item.Value(func(val []byte) error {
		var err error
		meta, err = storage.UnmarshalCollectionMeta(val)
		return err
	})
	return meta, err
}

// EnsureCollection creates the collection if needed.
func (i *Index) EnsureCollection(ctx context.Context, name string, dim int) error {
	if err := i.check(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: %d", storage.ErrInvalidDimension, dim)
	}

	return i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta != nil {
			if meta.Dimension != dim {
				return fmt.Errorf("%w: collection %q has dimension %d, embedder produces %d",
					storage.ErrDimensionMismatch, name, meta.Dimension, dim)
			}
			return nil
		}

		meta = &storage.CollectionMeta{
			Name:      name,
			Dimension: dim,
			Distance:  storage.DistanceCosine,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Set(makeMetaKey(name), storage.MarshalCollectionMeta(meta)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
		}
		i.logger.Info("created collection", "collection", name, "dimension", dim)
		return nil
	}, true)
}

func (i *Index) sequence(name string) (*badger.Sequence, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if seq, ok := i.seqs[name]; ok {
		return seq, nil
	}
	seq, err := i.backend.GetSequence(makeSeqKey(name))
	if err != nil {
		return nil, err
	}
	i.seqs[name] = seq
	return seq, nil
}

func (i *Index) releaseSequence(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	seq, ok := i.seqs[name]
	if !ok {
		return nil
	}
	delete(i.seqs, name)
	return seq.Release()
}

// Upsert stores chunks keyed by chunk id. A chunk that replaces an existing
// one keeps its original insertion position.
func (i *Index) Upsert(ctx context.Context, name string, chunks []core.IndexedChunk) (int, error) {
	if err := i.check(name); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	var dim int
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
		}
		dim = meta.Dimension
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	for n := range chunks {
		if err := core.ValidateIndexedChunk(&chunks[n]); err != nil {
			return 0, err
		}
		if len(chunks[n].Vector) != dim {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, collection %q has %d",
				storage.ErrDimensionMismatch, chunks[n].ChunkID, len(chunks[n].Vector), name, dim)
		}
	}

	seq, err := i.sequence(name)
	if err != nil {
		return 0, err
	}

	stored := 0
	for batch := range slices.Chunk(chunks, maxChunksPerTx) {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		err := i.backend.WithTx(func(tx *badger.Txn) error {
			for n := range batch {
				if err := i.put(tx, name, seq, &batch[n]); err != nil {
					return err
				}
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
			}
			return nil
		}, true)
		if err != nil {
			return stored, err
		}
		stored += len(batch)
	}

	i.logger.Debug("upserted chunks", "collection", name, "count", stored)
	return stored, nil
}

func (i *Index) put(tx *badger.Txn, name string, seq *badger.Sequence, chunk *core.IndexedChunk) error {
	idxKey := makeIndexKey(name, chunk.ChunkID)

	var pos uint64
	item, err := tx.Get(idxKey)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			pos = decodeSeq(val)
			return nil
		}); err != nil {
			return err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
		if pos, err = seq.Next(); err != nil {
			return err
		}
		if err := tx.Set(idxKey, encodeSeq(pos)); err != nil {
			return err
		}
	default:
		return err
	}

	rec := &storage.ChunkRecord{
		Seq: pos,
		Chunk: core.IndexedChunk{
			Chunk:  chunk.Chunk,
			Vector: core.NormalizeVector(chunk.Vector),
		},
	}
	return tx.Set(makeRecordKey(name, pos), storage.MarshalChunkRecord(rec))
}

// Search performs a brute-force cosine scan over the collection.
func (i *Index) Search(ctx context.Context, name string, vector []float32, k int) ([]core.ScoredCandidate, error) {
	if err := i.check(name); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}

	query := core.NormalizeVector(vector)
	var results []core.ScoredCandidate

	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta == nil {
			return nil
		}
		if len(vector) != meta.Dimension {
			return fmt.Errorf("%w: query has dimension %d, collection %q has %d",
				storage.ErrDimensionMismatch, len(vector), name, meta.Dimension)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec *storage.ChunkRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalChunkRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, core.ScoredCandidate{
				Chunk: rec.Chunk.Chunk,
				Score: float64(core.DotProduct(query, rec.Chunk.Vector)),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Records are visited in insertion order, so a stable sort keeps
	// equal scores in that order.
	slices.SortStableFunc(results, func(a, b core.ScoredCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []core.ScoredCandidate{}
	}
	return results, nil
}

// Count returns the number of chunks in the collection.
func (i *Index) Count(ctx context.Context, name string) (int, error) {
	if err := i.check(name); err != nil {
		return 0, err
	}

	count := 0
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeIndexPrefix(name)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Info describes the collection.
func (i *Index) Info(ctx context.Context, name string) (core.CollectionInfo, error) {
	if err := i.check(name); err != nil {
		return core.CollectionInfo{}, err
	}

	var meta *storage.CollectionMeta
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		meta, err = readMeta(tx, name)
		return err
	}, false)
	if err != nil {
		return core.CollectionInfo{}, err
	}
	if meta == nil {
		return core.CollectionInfo{}, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}

	count, err := i.Count(ctx, name)
	if err != nil {
		return core.CollectionInfo{}, err
	}
	return core.CollectionInfo{
		Name:      meta.Name,
		Dimension: meta.Dimension,
		Distance:  meta.Distance,
		Count:     count,
	}, nil
}

// Collections lists every collection name in lexical order.
func (i *Index) Collections(ctx context.Context) ([]string, error) {
	if i.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	names := []string{}
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionMetaPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			names = append(names, string(bytes.TrimPrefix(key, []byte(collectionMetaPrefix))))
		}
		return nil
	}, false)
	return names, err
}

// Scan pages through the collection in insertion order. The cursor is the
// decimal sequence number of the last chunk returned.
func (i *Index) Scan(ctx context.Context, name string, cursor string, limit int) ([]core.IndexedChunk, string, error) {
	if err := i.check(name); err != nil {
		return nil, "", err
	}
	if limit < 1 {
		return nil, "", fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}

	start := makeRecordPrefix(name)
	if cursor != "" {
		last, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad cursor %q", storage.ErrInvalidQuery, cursor)
		}
		start = makeRecordKey(name, last+1)
	}

	var (
		out  []core.IndexedChunk
		next string
	)
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var lastSeq uint64
		for iter.Seek(start); iter.Valid(); iter.Next() {
			if len(out) == limit {
				next = strconv.FormatUint(lastSeq, 10)
				return nil
			}
			var rec *storage.ChunkRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalChunkRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			lastSeq = seqFromRecordKey(iter.Item().Key())
			out = append(out, rec.Chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

// DeleteBySource removes every chunk loaded from source. Records are found
// by a full scan of the collection; each one takes its id index entry with it.
func (i *Index) DeleteBySource(ctx context.Context, name string, source string) (int, error) {
	if err := i.check(name); err != nil {
		return 0, err
	}

	var keys [][]byte
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil || meta == nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec *storage.ChunkRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalChunkRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if rec.Chunk.Source != source {
				continue
			}
			keys = append(keys, iter.Item().KeyCopy(nil), makeIndexKey(name, rec.Chunk.ChunkID))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := i.backend.DeleteKeys(keys)
	if err != nil {
		return deleted / 2, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	i.logger.Debug("deleted chunks", "collection", name, "source", source, "count", len(keys)/2)
	return len(keys) / 2, nil
}

// DropCollection deletes the collection and all of its chunks.
func (i *Index) DropCollection(ctx context.Context, name string) error {
	if err := i.check(name); err != nil {
		return err
	}
	if err := i.releaseSequence(name); err != nil {
		return err
	}
	for _, prefix := range [][]byte{makeRecordPrefix(name), makeIndexPrefix(name)} {
		if _, err := i.backend.DeletePrefix(prefix); err != nil {
			return err
		}
	}
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeMetaKey(name)); err != nil {
			return err
		}
		if err := tx.Delete(makeSeqKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	i.logger.Info("dropped collection", "collection", name)
	return nil
}

// Close releases sequences and, if the index opened it, the backend.
func (i *Index) Close() error {
	i.mu.Lock()
	var errs []error
	for name, seq := range i.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, err)
		}
		delete(i.seqs, name)
	}
	i.mu.Unlock()

	if i.owned && !i.backend.IsClosed() {
		if err := i.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
