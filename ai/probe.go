package ai

import (
	"context"
	"fmt"
)

// DimensionCanary is the text embedded to discover a model's output dimension.
const DimensionCanary = "dimension check"

// ProbeDimension embeds DimensionCanary and returns the vector length.
func ProbeDimension(ctx context.Context, embedder Embedder) (int, error) {
	vec, err := embedder.EmbedText(ctx, DimensionCanary)
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("%w: probing dimension", ErrEmptyEmbedding)
	}
	return len(vec), nil
}
