package ai

import "errors"

var (
	// ErrEmptyEmbedding is returned when an embedder produces a zero-length vector.
	ErrEmptyEmbedding = errors.New("embedder returned an empty vector")

	// ErrScoreCountMismatch is returned when a scorer returns a different
	// number of scores than texts it was given.
	ErrScoreCountMismatch = errors.New("score count does not match text count")
)
