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


package ragstudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/ai/crossencoder"
	"github.com/poiesic/ragstudio/ai/openai"
	"github.com/poiesic/ragstudio/answer"
	"github.com/poiesic/ragstudio/chunking"
	"github.com/poiesic/ragstudio/config"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/fusion"
	"github.com/poiesic/ragstudio/ingestion"
	"github.com/poiesic/ragstudio/loader"
	"github.com/poiesic/ragstudio/reembed"
	"github.com/poiesic/ragstudio/rerank"
	"github.com/poiesic/ragstudio/retrieval"
	"github.com/poiesic/ragstudio/storage"
	"github.com/poiesic/ragstudio/storage/badger"
	"github.com/poiesic/ragstudio/storage/qdrant"
)

// Monitor observes both queries and ingestion. *metrics.Metrics
// implements it.
type Monitor interface {
	retrieval.Monitor
	ingestion.Monitor
}

// Studio owns every long-lived collaborator of the pipeline: the vector
// index, the embedder, the lazily built reranker, the retriever and the
// ingestion pipeline. It is safe for concurrent use.
type Studio struct {
	cfg        *config.Config
	index      storage.VectorIndex
	ownsIndex  bool
	embedder   ai.Embedder
	provider   ai.AIProvider
	reranker   *rerank.Reranker
	assembler  *answer.Assembler
	retriever  *retrieval.Retriever
	pipeline   *ingestion.Pipeline
	logger     *slog.Logger
	ensureMu   sync.Mutex
	ready      bool
	ensureErr  error
	closeOnce  sync.Once
}

// Option configures a Studio.
type Option func(*studioOptions)

type studioOptions struct {
	provider      ai.AIProvider
	embedder      ai.Embedder
	scorerFactory rerank.ScorerFactory
	index         storage.VectorIndex
	logger        *slog.Logger
	monitor       Monitor
}

// WithProvider supplies the embedder and the rerank scorer from provider.
// The Studio closes it on Close. WithEmbedder and WithScorerFactory take
// precedence over it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *studioOptions) {
		o.provider = provider
	}
}

// WithEmbedder replaces the embedder built from the configuration.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *studioOptions) {
		o.embedder = embedder
	}
}

// WithScorerFactory replaces the scorer built from the configuration. The
// factory runs at most once, on the first rerank query.
func WithScorerFactory(factory rerank.ScorerFactory) Option {
	return func(o *studioOptions) {
		o.scorerFactory = factory
	}
}

// WithIndex replaces the index opened from the configuration. The caller
// keeps ownership: Close does not close it.
func WithIndex(index storage.VectorIndex) Option {
	return func(o *studioOptions) {
		o.index = index
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *studioOptions) {
		o.logger = logger
	}
}

// WithMonitor instruments queries and ingestion.
func WithMonitor(monitor Monitor) Option {
	return func(o *studioOptions) {
		o.monitor = monitor
	}
}

// New builds a Studio from cfg. A nil cfg uses config.Default(). The index
// and embedder are created here; the scorer and the collection are set up
// on first use.
func New(cfg *config.Config, opts ...Option) (*Studio, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &studioOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Studio{
		cfg:    cfg,
		logger: logger.With("component", "studio", "collection", cfg.Index.Collection),
	}

	s.index = options.index
	if s.index == nil {
		index, err := OpenIndex(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.index = index
		s.ownsIndex = true
	}

	if err := s.build(cfg, options, logger); err != nil {
		if s.ownsIndex {
			s.index.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *Studio) build(cfg *config.Config, options *studioOptions, logger *slog.Logger) error {
	s.provider = options.provider
	if s.provider == nil && options.embedder == nil {
		provider, err := openai.NewProvider(cfg.AI())
		if err != nil {
			return err
		}
		s.provider = provider
	}

	s.embedder = options.embedder
	if s.embedder == nil {
		s.embedder = s.provider.Embedder()
	}

	factory := options.scorerFactory
	switch {
	case factory != nil:
	case options.provider != nil:
		provider := options.provider
		factory = func() (ai.Scorer, error) { return provider.Scorer(), nil }
	default:
		factory = ScorerFactory(cfg, s.provider)
	}
	reranker, err := rerank.New(factory, rerank.WithLogger(logger))
	if err != nil {
		return err
	}
	s.reranker = reranker

	s.assembler, err = answer.New(
		answer.WithSnippetLength(cfg.Retrieval.SnippetLength),
		answer.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	strategy, err := fusion.ParseStrategy(cfg.Retrieval.FusionStrategy)
	if err != nil {
		return err
	}
	fuser, err := fusion.New(fusion.WithStrategy(strategy), fusion.WithLogger(logger))
	if err != nil {
		return err
	}

	retrievalOpts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithReranker(reranker),
		retrieval.WithFusion(fuser),
		retrieval.WithDefaultK(cfg.Retrieval.DefaultK),
		retrieval.WithOverfetch(cfg.Retrieval.Overfetch),
		retrieval.WithHybridWeights(cfg.Retrieval.LexicalWeight, cfg.Retrieval.VectorWeight),
	}
	if options.monitor != nil {
		retrievalOpts = append(retrievalOpts, retrieval.WithMonitor(options.monitor))
	}
	s.retriever, err = retrieval.NewRetriever(s.index, s.embedder, cfg.Index.Collection, retrievalOpts...)
	if err != nil {
		return err
	}

	chunker, err := chunking.New(
		chunking.WithChunkSize(cfg.Chunking.Size),
		chunking.WithChunkOverlap(cfg.Chunking.Overlap),
		chunking.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	fileLoader, err := loader.New(loader.WithLogger(logger))
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithLoader(fileLoader),
		ingestion.WithChunker(chunker),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithPrepare(s.ensureCollection),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if options.monitor != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithMonitor(options.monitor))
	}
	s.pipeline, err = ingestion.NewPipeline(s.index, s.embedder, cfg.Index.Collection, pipelineOpts...)
	return err
}

// OpenIndex opens the vector index backend named by cfg.
func OpenIndex(cfg *config.Config, logger *slog.Logger) (storage.VectorIndex, error) {
	switch cfg.Index.Backend {
	case config.BackendBadger:
		return badger.NewIndex(cfg.Index.Path, badger.WithLogger(logger))
	case config.BackendQdrant:
		return qdrant.NewIndex(cfg.Index.Qdrant.URL,
			qdrant.WithAPIKey(cfg.Index.Qdrant.APIKey),
			qdrant.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", config.ErrInvalidConfig, cfg.Index.Backend)
	}
}

// ScorerFactory returns a factory for the scorer selected by the rerank
// section of cfg. The llm provider reuses the scorer of provider when one
// is given.
func ScorerFactory(cfg *config.Config, provider ai.AIProvider) rerank.ScorerFactory {
	aiCfg := cfg.AI()
	return func() (ai.Scorer, error) {
		if aiCfg.RerankProvider != ai.RerankLLM {
			return crossencoder.NewScorerFromConfig(aiCfg)
		}
		if provider != nil {
			return provider.Scorer(), nil
		}
		return openai.NewScorer(aiCfg)
	}
}

// ensureCollection asks the embedder for its dimension and creates the
// collection on first success. Transient failures are returned and retried on
// the next call; a dimension conflict with the stored collection sticks.
func (s *Studio) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ready {
		return nil
	}
	if s.ensureErr != nil {
		return s.ensureErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	dim, err := ai.ProbeDimension(ctx, s.embedder)
	if err != nil {
		s.logger.Warn("embedder dimension unavailable", "err", err)
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if err := s.index.EnsureCollection(ctx, s.cfg.Index.Collection, dim); err != nil {
		err = fmt.Errorf("%w: %w", ErrNotReady, err)
		if errors.Is(err, storage.ErrDimensionMismatch) || errors.Is(err, storage.ErrInvalidDimension) {
			s.ensureErr = err
		}
		return err
	}
	s.ready = true
	s.logger.Info("collection ready", "dimension", dim)
	return nil
}

// Ingest loads, chunks, embeds and indexes the file at path.
func (s *Studio) Ingest(ctx context.Context, path string) (core.IngestResult, error) {
	return s.pipeline.Ingest(ctx, path)
}

// IngestGlob ingests every file matching a doublestar pattern.
func (s *Studio) IngestGlob(ctx context.Context, pattern string) ([]core.IngestResult, error) {
	return s.pipeline.IngestGlob(ctx, pattern)
}

// Query answers question using the named retrieval mode. Unknown modes
// fall back to vector search. k < 1 uses the configured default.
func (s *Studio) Query(ctx context.Context, question, mode string, k int) (core.AnswerResult, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return core.AnswerResult{}, err
	}
	results, err := s.retriever.Query(ctx, question, core.ParseMode(mode), k)
	if err != nil {
		return core.AnswerResult{}, err
	}
	return s.assembler.Assemble(question, core.Chunks(results)), nil
}

// Retrieve returns the ranked candidates for question without assembling
// an answer.
func (s *Studio) Retrieve(ctx context.Context, question string, mode core.Mode, k int) ([]core.ScoredCandidate, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s.retriever.Query(ctx, question, mode, k)
}

// NewWatcher watches root and ingests matching files as they change.
func (s *Studio) NewWatcher(root string, opts ...ingestion.WatchOption) (*ingestion.Watcher, error) {
	return ingestion.NewWatcher(s.pipeline, root, opts...)
}

// NewReindexer re-embeds the chunks of source into target using the
// Studio's index and embedder.
func (s *Studio) NewReindexer(source, target string, cfg *reembed.Config, progress io.Writer) (*reembed.Reindexer, error) {
	return reembed.NewReindexer(s.index, s.embedder, source, target, cfg, progress)
}

// Collections describes every collection in the index.
func (s *Studio) Collections(ctx context.Context) ([]core.CollectionInfo, error) {
	names, err := s.index.Collections(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]core.CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := s.index.Info(ctx, name)
		if err != nil {
			if errors.Is(err, storage.ErrCollectionNotFound) {
				continue
			}
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Config returns the configuration the Studio was built from.
func (s *Studio) Config() *config.Config {
	return s.cfg
}

// Close releases the worker pool, the AI provider and, unless it was
// injected, the index.
func (s *Studio) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.pipeline.Release()
		if s.provider != nil {
			if perr := s.provider.Close(); perr != nil {
				s.logger.Error("error closing AI provider", "err", perr)
			}
		}
		if s.ownsIndex {
			if err = s.index.Close(); err != nil {
				s.logger.Error("error closing index", "err", err)
			}
		}
	})
	return err
}
