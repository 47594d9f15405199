package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCollectionRequired is returned when source or target is empty.
	ErrCollectionRequired = errors.New("source and target collections required")

	// ErrSameCollection is returned when source and target are the same.
	ErrSameCollection = errors.New("source and target collections must differ")

	// ErrEmbeddingCountMismatch is returned when the embedder returns a
	// different number of vectors than texts.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
)
