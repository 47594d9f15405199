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


package fusion

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/ragstudio/core"
)

// Engine merges ranked candidate lists into one.
type Engine struct {
	strategy Strategy
	c        int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithStrategy selects the scoring strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) error {
		switch s {
		case StrategyReciprocalRank, StrategyMinMax:
			e.strategy = s
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
	}
}

// WithRankConstant sets c for reciprocal rank fusion.
func WithRankConstant(c int) Option {
	return func(e *Engine) error {
		if c <= 0 {
			return fmt.Errorf("%w: rank constant must be positive, got %d", ErrInvalidParameter, c)
		}
		e.c = c
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Engine. Reciprocal rank fusion with c = 60 is the default.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		strategy: StrategyReciprocalRank,
		c:        DefaultRankConstant,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "fusion", "strategy", string(e.strategy))
	return e, nil
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

type fused struct {
	chunk core.Chunk
	score float64
	order int
}

// Fuse combines lists with positionally aligned weights. Each chunk appears
// once in the output, keyed by chunk id or by content when the id is
// missing. Results are sorted by fused score, highest first. Ties go to
// the item that appears first in the highest-weighted list; among equal
// weights the earlier list wins. Nothing is truncated.
func (e *Engine) Fuse(lists [][]core.ScoredCandidate, weights []float64) ([]core.ScoredCandidate, error) {
	if len(lists) != len(weights) {
		return nil, fmt.Errorf("%w: %d lists, %d weights", ErrWeightsMismatch, len(lists), len(weights))
	}
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalidWeight, i, w)
		}
	}

	score := reciprocalRank(e.c)
	if e.strategy == StrategyMinMax {
		score = minMax
	}

	// Visit lists by descending weight so the first sighting of a chunk
	// doubles as its tie-break position.
	priority := make([]int, len(lists))
	for i := range priority {
		priority[i] = i
	}
	slices.SortStableFunc(priority, func(a, b int) int {
		switch {
		case weights[a] > weights[b]:
			return -1
		case weights[a] < weights[b]:
			return 1
		default:
			return 0
		}
	})

	byKey := make(map[string]*fused)
	var items []*fused
	for _, li := range priority {
		list := lists[li]
		contrib := score(list, weights[li])
		for pos, cand := range list {
			key := cand.Key()
			item, ok := byKey[key]
			if !ok {
				item = &fused{chunk: cand.Chunk, order: len(items)}
				byKey[key] = item
				items = append(items, item)
			}
			item.score += contrib[pos]
		}
	}

	slices.SortStableFunc(items, func(a, b *fused) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.order - b.order
		}
	})

	out := make([]core.ScoredCandidate, len(items))
	for i, item := range items {
		out[i] = core.ScoredCandidate{Chunk: item.chunk, Score: item.score}
	}
	e.logger.Debug("fused lists", "lists", len(lists), "unique", len(out))
	return out, nil
}
