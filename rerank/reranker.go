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


package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/ragstudio/ai"
	"github.com/poiesic/ragstudio/core"
)

// ScorerFactory builds the pairwise scorer. It is invoked at most once per
// Reranker.
type ScorerFactory func() (ai.Scorer, error)

// Reranker reorders candidates by a pairwise relevance scorer.
type Reranker struct {
	factory ScorerFactory
	logger  *slog.Logger

	once      sync.Once
	scorer    ai.Scorer
	scorerErr error
}

// Option configures a Reranker.
type Option func(*Reranker) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a Reranker. The factory is not called until the first
// non-empty Rerank.
func New(factory ScorerFactory, opts ...Option) (*Reranker, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	r := &Reranker{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reranker")
	return r, nil
}

// NewWithScorer wraps an already constructed scorer.
func NewWithScorer(scorer ai.Scorer, opts ...Option) (*Reranker, error) {
	if scorer == nil {
		return nil, ErrFactoryRequired
	}
	return New(func() (ai.Scorer, error) { return scorer, nil }, opts...)
}

// Scorer returns the scorer, building it on first use. A construction
// failure is remembered and returned on every call.
func (r *Reranker) Scorer() (ai.Scorer, error) {
	r.once.Do(func() {
		r.scorer, r.scorerErr = r.factory()
		if r.scorerErr == nil && r.scorer == nil {
			r.scorerErr = ErrNilScorer
		}
		if r.scorerErr != nil {
			r.scorerErr = fmt.Errorf("%w: %w", ErrScorerUnavailable, r.scorerErr)
			r.logger.Error("scorer construction failed", "err", r.scorerErr)
			return
		}
		r.logger.Debug("scorer ready")
	})
	return r.scorer, r.scorerErr
}

// Rerank scores each candidate against query, sorts by descending score
// (ties keep input order) and returns at most topK. A topK below one keeps
// every candidate. Empty input returns an empty slice without touching the
// scorer.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []core.ScoredCandidate, topK int) ([]core.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return []core.ScoredCandidate{}, nil
	}

	scorer, err := r.Scorer()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: %d candidates, %d scores", ai.ErrScoreCountMismatch, len(candidates), len(scores))
	}

	out := make([]core.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = core.ScoredCandidate{Chunk: c.Chunk, Score: float64(scores[i])}
	}
	slices.SortStableFunc(out, func(a, b core.ScoredCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	r.logger.Debug("reranked candidates", "in", len(candidates), "out", len(out))
	return out, nil
}
