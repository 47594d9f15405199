package rerank

import "errors"

var (
	// ErrFactoryRequired is returned by New when no scorer factory is given.
	ErrFactoryRequired = errors.New("scorer factory is required")

	// ErrNilScorer is returned when the factory succeeds without a scorer.
	ErrNilScorer = errors.New("scorer factory returned nil scorer")

	// ErrScorerUnavailable wraps a scorer construction failure.
	ErrScorerUnavailable = errors.New("reranking scorer unavailable")
)
