package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragstudio/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns chunk texts and questions into vectors through an
// OpenAI-compatible /embeddings endpoint. Newlines are folded into spaces
// before sending; the vectors come back unnormalized.
type Embedder struct {
	client *embeddings.EmbedderImpl
	model  string
	logger *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token(config.APIKey)),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client for %s: %w", config.EmbeddingHost, err)
	}

	client, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		client: client,
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder returns the embedder configured by config.EmbeddingHost and
// config.EmbeddingModel.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds one question or canary string. A zero-length vector is
// reported as ai.ErrEmptyEmbedding so a misconfigured model cannot create a
// collection of dimension zero.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("query embedding failed", "chars", len(text), "err", err)
		return nil, fmt.Errorf("embedding query with %s: %w", e.model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: model %s", ai.ErrEmptyEmbedding, e.model)
	}
	return vec, nil
}

// EmbedTexts embeds a batch of chunk texts, one vector per text in input
// order. An empty batch makes no request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("embedding chunk batch", "size", len(texts))

	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("chunk embedding failed", "size", len(texts), "err", err)
		return nil, fmt.Errorf("embedding %d chunk texts with %s: %w", len(texts), e.model, err)
	}
	return vectors, nil
}

// token returns the bearer token to send. Local OpenAI-compatible services
// accept any non-empty value.
func token(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	return apiKey
}
