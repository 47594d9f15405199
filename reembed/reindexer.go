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
	"log/slog"
	"time"

	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
)

// Config holds configuration for a re-indexing run.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding or
	// write call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MaxRetryDelay caps the delay between attempts
	MaxRetryDelay time.Duration

	// DropTarget empties the target collection before copying
	DropTarget bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

// Reindexer copies every chunk of a source collection into a target
// collection, embedding it again with the configured embedder. This is
// the way out when the embedding model changes and the stored vectors no
// longer match its dimension.
type Reindexer struct {
	index     storage.VectorIndex
	embedder  ai.Embedder
	source    string
	target    string
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReindexer creates a reindexer. progress receives human readable
// output (typically os.Stderr) and may be nil.
func NewReindexer(index storage.VectorIndex, embedder ai.Embedder, source, target string, config *Config, progress io.Writer) (*Reindexer, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if source == "" || target == "" {
		return nil, ErrCollectionRequired
	}
	if source == target {
		return nil, fmt.Errorf("%w: %q", ErrSameCollection, source)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	logger := slog.Default().With("component", "reindexer", "source", source, "target", target)
	backoff := Backoff{
		MaxAttempts: config.MaxRetries,
		BaseDelay:   config.RetryDelay,
		MaxDelay:    config.MaxRetryDelay,
	}

	return &Reindexer{
		index:     index,
		embedder:  embedder,
		source:    source,
		target:    target,
		config:    config,
		progress:  progress,
		logger:    logger,
		processor: NewBatchProcessor(index, embedder, target, backoff, logger),
		iterator:  NewChunkIterator(index, source, config.BatchSize),
	}, nil
}

// Run executes the copy and returns the number of chunks written to the
// target collection.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	total, err := r.index.Count(ctx, r.source)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in collection %q (0 chunks)\n", r.source)
		return 0, nil
	}

	dim, err := ai.ProbeDimension(ctx, r.embedder)
	if err != nil {
		return 0, err
	}
	if r.config.DropTarget {
		if err := r.index.DropCollection(ctx, r.target); err != nil {
			return 0, fmt.Errorf("failed to drop target collection: %w", err)
		}
	}
	if err := r.index.EnsureCollection(ctx, r.target, dim); err != nil {
		return 0, err
	}

	fmt.Fprintf(r.progress, "Re-embedding %d chunks from %q into %q (dimension %d, batch size %d)\n",
		total, r.source, r.target, dim, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval, "chunks")
	tracker.Start()

	written := 0
	err = r.iterator.ForEach(ctx, func(chunks []core.IndexedChunk) error {
		n, err := r.processor.Process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		written += n
		tracker.Increment(len(chunks))
		return nil
	})
	tracker.Finish()
	if err != nil {
		r.logger.Error("reindex aborted", "written", written, "err", err)
		return written, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Wrote %d chunks in %v (%.1f chunks/sec)\n",
		written, elapsed.Round(time.Millisecond), float64(written)/max(elapsed.Seconds(), 1e-9))
	r.logger.Info("reindex complete", "chunks", written, "elapsed", elapsed)
	return written, nil
}
