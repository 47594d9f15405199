package ingestion

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/chunking"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/loader"
	"github.com/poiesic/ragstudio/storage"
)

// Pipeline loads files, splits them into chunks, embeds the chunks and
// writes them to the vector index.
type Pipeline struct {
	loader  *loader.Loader
	chunker *chunking.Chunker
	indexer *Indexer
	monitor Monitor
	prepare func(context.Context) error
	logger  *slog.Logger

	poolSize  int
	batchSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent embedding workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		p.poolSize = max(size, 1)
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		p.batchSize = max(size, 1)
		return nil
	}
}

// WithLoader replaces the default file loader.
func WithLoader(l *loader.Loader) Option {
	return func(p *Pipeline) error {
		if l != nil {
			p.loader = l
		}
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithMonitor installs a monitor notified after every file.
func WithMonitor(m Monitor) Option {
	return func(p *Pipeline) error {
		if m == nil {
			m = noopMonitor{}
		}
		p.monitor = m
		return nil
	}
}

// WithPrepare registers a hook run before chunks are written, typically
// to make sure the target collection exists. Its error aborts the ingest.
func WithPrepare(fn func(context.Context) error) Option {
	return func(p *Pipeline) error {
		p.prepare = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline writing to collection.
func NewPipeline(index storage.VectorIndex, embedder ai.Embedder, collection string, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		monitor:   noopMonitor{},
		logger:    slog.Default(),
		poolSize:  defaultPoolSize(),
		batchSize: DefaultBatchSize,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion", "collection", collection)

	if p.loader == nil {
		l, err := loader.New(loader.WithLogger(p.logger))
		if err != nil {
			return nil, err
		}
		p.loader = l
	}
	if p.chunker == nil {
		c, err := chunking.New(chunking.WithLogger(p.logger))
		if err != nil {
			return nil, err
		}
		p.chunker = c
	}

	indexer, err := newIndexer(index, embedder, collection, p.poolSize, p.batchSize, p.logger)
	if err != nil {
		return nil, err
	}
	p.indexer = indexer

	return p, nil
}

// Indexer returns the pipeline's chunk indexer.
func (p *Pipeline) Indexer() *Indexer {
	return p.indexer
}

// Ingest loads path, chunks it and indexes the chunks in place of any
// chunks previously ingested from the same path, so ingesting a file twice
// leaves one copy. A file that yields no chunks indexes nothing and is not
// an error; chunks left from an earlier version of it are removed.
func (p *Pipeline) Ingest(ctx context.Context, path string) (core.IngestResult, error) {
	start := time.Now()
	result, err := p.ingest(ctx, path)
	p.monitor.FileIngested(result, time.Since(start), err)
	if err != nil {
		p.logger.Error("ingest failed", "path", path, "err", err)
		return result, err
	}
	p.logger.Info("ingested file", "path", path, "chunks", result.ChunksIndexed, "elapsed", time.Since(start))
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, path string) (core.IngestResult, error) {
	result := core.IngestResult{Source: path}

	docs, err := p.loader.Load(ctx, path)
	if err != nil {
		return result, err
	}

	chunks, err := p.chunker.SplitAll(docs)
	if err != nil {
		return result, err
	}
	if len(chunks) == 0 {
		p.logger.Warn("file produced no chunks", "path", path)
		_, err := p.indexer.ReplaceSource(ctx, path, nil)
		return result, err
	}

	if p.prepare != nil {
		if err := p.prepare(ctx); err != nil {
			return result, err
		}
	}

	n, err := p.indexer.ReplaceSource(ctx, path, chunks)
	if err != nil {
		return result, err
	}
	result.ChunksIndexed = n
	return result, nil
}

// IngestGlob ingests every file matching a doublestar pattern (e.g.
// "docs/**/*.pdf") in lexical order. It stops at the first failure and
// returns the results gathered so far.
func (p *Pipeline) IngestGlob(ctx context.Context, pattern string) ([]core.IngestResult, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, ErrInvalidPattern
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)

	results := make([]core.IngestResult, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.Ingest(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.indexer != nil {
		p.indexer.Release()
	}
}
