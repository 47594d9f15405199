package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/fusion"
	"github.com/poiesic/ragstudio/lexical"
	"github.com/poiesic/ragstudio/rerank"
	"github.com/poiesic/ragstudio/storage"
)

const (
	// DefaultK is used when a query asks for fewer than one result.
	DefaultK = 5
	// DefaultOverfetch is the minimum number of candidates pulled from the
	// vector index before any reranking or fusion.
	DefaultOverfetch = 8
	// DefaultHybridWeight is the weight of both the lexical and the vector
	// list in hybrid mode.
	DefaultHybridWeight = 0.5
)

// Retriever answers queries against one collection of a vector index.
type Retriever struct {
	index      storage.VectorIndex
	embedder   ai.Embedder
	collection string
	reranker   *rerank.Reranker
	fuser      *fusion.Engine
	monitor    Monitor
	logger     *slog.Logger

	defaultK       int
	overfetch      int
	lexicalWeight  float64
	vectorWeight   float64
	lexicalOptions []lexical.Option
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithReranker enables rerank mode.
func WithReranker(reranker *rerank.Reranker) Option {
	return func(r *Retriever) error {
		r.reranker = reranker
		return nil
	}
}

// WithFusion replaces the fusion engine used in hybrid mode.
func WithFusion(engine *fusion.Engine) Option {
	return func(r *Retriever) error {
		if engine == nil {
			return fmt.Errorf("%w: nil fusion engine", ErrInvalidOption)
		}
		r.fuser = engine
		return nil
	}
}

// WithMonitor installs a monitor that sees every query.
func WithMonitor(monitor Monitor) Option {
	return func(r *Retriever) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		r.monitor = monitor
		return nil
	}
}

// WithDefaultK sets the result count used when a query passes k < 1.
func WithDefaultK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("%w: default k must be positive, got %d", ErrInvalidOption, k)
		}
		r.defaultK = k
		return nil
	}
}

// WithOverfetch sets the minimum vector search depth.
func WithOverfetch(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("%w: overfetch must be positive, got %d", ErrInvalidOption, n)
		}
		r.overfetch = n
		return nil
	}
}

// WithHybridWeights sets the lexical and vector weights for hybrid mode.
func WithHybridWeights(lexicalWeight, vectorWeight float64) Option {
	return func(r *Retriever) error {
		if lexicalWeight < 0 || vectorWeight < 0 {
			return fmt.Errorf("%w: hybrid weights must be non-negative", ErrInvalidOption)
		}
		r.lexicalWeight = lexicalWeight
		r.vectorWeight = vectorWeight
		return nil
	}
}

// WithLexicalOptions passes options to the per-query BM25 index.
func WithLexicalOptions(opts ...lexical.Option) Option {
	return func(r *Retriever) error {
		r.lexicalOptions = opts
		return nil
	}
}

// NewRetriever creates a retriever for collection.
func NewRetriever(index storage.VectorIndex, embedder ai.Embedder, collection string, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}

	fuser, err := fusion.New()
	if err != nil {
		return nil, err
	}

	r := &Retriever{
		index:         index,
		embedder:      embedder,
		collection:    collection,
		fuser:         fuser,
		monitor:       &noopMonitor{},
		logger:        slog.Default(),
		defaultK:      DefaultK,
		overfetch:     DefaultOverfetch,
		lexicalWeight: DefaultHybridWeight,
		vectorWeight:  DefaultHybridWeight,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever", "collection", collection)

	return r, nil
}

// Depth returns how many candidates are fetched from the vector index for
// a query asking for k results.
func (r *Retriever) Depth(k int) int {
	return max(k, r.overfetch)
}

// Query returns up to k chunks for question ranked by mode. A k below one
// selects the default. Errors from the index, the embedder or the scorer
// are returned as is.
func (r *Retriever) Query(ctx context.Context, question string, mode core.Mode, k int) ([]core.ScoredCandidate, error) {
	if k < 1 {
		k = r.defaultK
	}
	start := time.Now()
	r.monitor.Start(question, mode, k)

	results, err := r.query(ctx, question, mode, k)

	r.monitor.Finish(mode, results, time.Since(start), err)
	if err != nil {
		r.logger.Error("query failed", "mode", mode, "err", err)
		return nil, err
	}
	r.logger.Debug("query complete", "mode", mode, "k", k, "results", len(results))
	return results, nil
}

func (r *Retriever) query(ctx context.Context, question string, mode core.Mode, k int) ([]core.ScoredCandidate, error) {
	vector, err := r.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}

	depth := r.Depth(k)
	seed, err := r.index.Search(ctx, r.collection, vector, depth)
	if err != nil {
		return nil, err
	}
	r.monitor.AfterVectorSearch(seed)

	switch mode {
	case core.ModeHybrid:
		return r.hybrid(question, seed, depth, k)
	case core.ModeRerank:
		return r.rerank(ctx, question, seed, k)
	default:
		return truncate(seed, k), nil
	}
}

func (r *Retriever) hybrid(question string, seed []core.ScoredCandidate, depth, k int) ([]core.ScoredCandidate, error) {
	bm25, err := lexical.New(seed, r.lexicalOptions...)
	if err != nil {
		return nil, err
	}
	lex := bm25.Score(question, depth)
	r.monitor.AfterLexicalScoring(lex)

	fused, err := r.fuser.Fuse(
		[][]core.ScoredCandidate{lex, seed},
		[]float64{r.lexicalWeight, r.vectorWeight},
	)
	if err != nil {
		return nil, err
	}
	r.monitor.AfterFusion(fused)
	return truncate(fused, k), nil
}

func (r *Retriever) rerank(ctx context.Context, question string, seed []core.ScoredCandidate, k int) ([]core.ScoredCandidate, error) {
	if r.reranker == nil {
		return nil, ErrRerankerUnavailable
	}
	ranked, err := r.reranker.Rerank(ctx, question, seed, k)
	if err != nil {
		return nil, err
	}
	r.monitor.AfterRerank(ranked)
	return ranked, nil
}

func truncate(list []core.ScoredCandidate, k int) []core.ScoredCandidate {
	if len(list) > k {
		return list[:k]
	}
	return list
}
