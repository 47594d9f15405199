package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Scorer assigns a relevance score to each (query, text) pair.
// Higher scores mean more relevant. Scores are only comparable within a
// single call. Implementations must be thread-safe for concurrent use.
type Scorer interface {
	// Score returns one score per text, aligned with texts.
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Scorer returns the pairwise relevance scorer.
	Scorer() Scorer

	// Close releases resources held by the provider and its services.
	Close() error
}
