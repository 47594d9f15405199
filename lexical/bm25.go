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


package lexical

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/poiesic/ragstudio/core"
)

// Okapi BM25 parameters.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// Index is a BM25 index over a fixed candidate pool. It is built per query
// and is not safe for concurrent mutation, though Score may be called from
// several goroutines once built.
type Index struct {
	k1      float64
	b       float64
	epsilon float64
	logger  *slog.Logger

	pool    []core.ScoredCandidate
	freqs   []map[string]int
	lengths []int
	avgLen  float64
	idf     map[string]float64
}

// Option configures an Index.
type Option func(*Index) error

// WithK1 sets the term frequency saturation parameter.
func WithK1(k1 float64) Option {
	return func(i *Index) error {
		if k1 < 0 {
			return fmt.Errorf("%w: k1 must be non-negative, got %v", ErrInvalidParameter, k1)
		}
		i.k1 = k1
		return nil
	}
}

// WithB sets the length normalization parameter.
func WithB(b float64) Option {
	return func(i *Index) error {
		if b < 0 || b > 1 {
			return fmt.Errorf("%w: b must be within [0, 1], got %v", ErrInvalidParameter, b)
		}
		i.b = b
		return nil
	}
}

// WithEpsilon sets the floor applied to negative idf values, as a fraction
// of the average idf.
func WithEpsilon(epsilon float64) Option {
	return func(i *Index) error {
		if epsilon < 0 {
			return fmt.Errorf("%w: epsilon must be non-negative, got %v", ErrInvalidParameter, epsilon)
		}
		i.epsilon = epsilon
		return nil
	}
}

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

// New indexes the text of every candidate in pool. Incoming scores are
// ignored.
func New(pool []core.ScoredCandidate, opts ...Option) (*Index, error) {
	idx := &Index{
		k1:      DefaultK1,
		b:       DefaultB,
		epsilon: DefaultEpsilon,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "bm25")
	idx.build(pool)
	return idx, nil
}

func (i *Index) build(pool []core.ScoredCandidate) {
	i.pool = pool
	i.freqs = make([]map[string]int, len(pool))
	i.lengths = make([]int, len(pool))

	docFreq := make(map[string]int)
	total := 0
	for n, c := range pool {
		tokens := Tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			docFreq[t]++
		}
		i.freqs[n] = tf
		i.lengths[n] = len(tokens)
		total += len(tokens)
	}
	if len(pool) > 0 {
		i.avgLen = float64(total) / float64(len(pool))
	}

	// Terms present in more than half the pool get a negative raw idf and
	// are floored to epsilon times the average idf.
	i.idf = make(map[string]float64, len(docFreq))
	corpus := float64(len(pool))
	sum := 0.0
	var negative []string
	for term, df := range docFreq {
		v := math.Log(corpus-float64(df)+0.5) - math.Log(float64(df)+0.5)
		i.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(i.idf) > 0 {
		floor := i.epsilon * sum / float64(len(i.idf))
		for _, term := range negative {
			i.idf[term] = floor
		}
	}
}

// Len returns the pool size.
func (i *Index) Len() int {
	return len(i.pool)
}

// Scores returns the BM25 score of every pool entry for query, in pool order.
// Repeated query terms count once per occurrence.
func (i *Index) Scores(query string) []float64 {
	scores := make([]float64, len(i.pool))
	if i.avgLen == 0 {
		return scores
	}
	for _, term := range Tokenize(query) {
		idf, ok := i.idf[term]
		if !ok {
			continue
		}
		for n, tf := range i.freqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := 1 - i.b + i.b*float64(i.lengths[n])/i.avgLen
			scores[n] += idf * f * (i.k1 + 1) / (f + i.k1*norm)
		}
	}
	return scores
}

// Score ranks the pool against query by BM25, highest first with ties in
// pool order, and returns at most k candidates carrying their BM25 score.
// Zero-scoring candidates are kept so that the result covers the pool.
func (i *Index) Score(query string, k int) []core.ScoredCandidate {
	if k < 1 || len(i.pool) == 0 {
		return []core.ScoredCandidate{}
	}
	scores := i.Scores(query)

	order := make([]int, len(i.pool))
	for n := range order {
		order[n] = n
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})
	if len(order) > k {
		order = order[:k]
	}

	out := make([]core.ScoredCandidate, len(order))
	for n, pos := range order {
		out[n] = core.ScoredCandidate{Chunk: i.pool[pos].Chunk, Score: scores[pos]}
	}
	i.logger.Debug("bm25 ranked pool", "pool", len(i.pool), "returned", len(out))
	return out
}
