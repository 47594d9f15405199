package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	assert.Equal(t, RerankCrossEncoder, cfg.RerankProvider)
	assert.Equal(t, "cross-encoder/ms-marco-MiniLM-L-6-v2", cfg.RerankModel)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:8080", cfg.RerankHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://custom:8080/v1"),
			WithEmbeddingModel("custom-embed"),
			WithAPIKey("secret"),
			WithRerankProvider(RerankLLM),
			WithRerankHost("http://judge:9090"),
			WithRerankModel("qwen2.5:3b"),
		)

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, RerankLLM, cfg.RerankProvider)
		assert.Equal(t, "http://judge:9090", cfg.RerankHost)
		assert.Equal(t, "qwen2.5:3b", cfg.RerankModel)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name           string
		embeddingHost  string
		rerankProvider string
		rerankHost     string
		wantEmbedding  string
		wantRerank     string
	}{
		{
			name:           "already has /v1",
			embeddingHost:  "http://localhost:11434/v1",
			rerankProvider: RerankCrossEncoder,
			rerankHost:     "http://localhost:8080",
			wantEmbedding:  "http://localhost:11434/v1",
			wantRerank:     "http://localhost:8080",
		},
		{
			name:           "missing /v1",
			embeddingHost:  "http://localhost:11434",
			rerankProvider: RerankCrossEncoder,
			rerankHost:     "http://localhost:8080",
			wantEmbedding:  "http://localhost:11434/v1",
			wantRerank:     "http://localhost:8080",
		},
		{
			name:           "has trailing slash",
			embeddingHost:  "http://localhost:11434/",
			rerankProvider: RerankCrossEncoder,
			rerankHost:     "http://localhost:8080/",
			wantEmbedding:  "http://localhost:11434/v1",
			wantRerank:     "http://localhost:8080",
		},
		{
			name:           "llm rerank host gets /v1",
			embeddingHost:  "http://embed:8080",
			rerankProvider: "LLM",
			rerankHost:     "http://judge:9090",
			wantEmbedding:  "http://embed:8080/v1",
			wantRerank:     "http://judge:9090/v1",
		},
		{
			name:          "empty hosts",
			wantEmbedding: "",
			wantRerank:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				EmbeddingHost:  tt.embeddingHost,
				RerankProvider: tt.rerankProvider,
				RerankHost:     tt.rerankHost,
			}

			cfg.Normalize()

			assert.Equal(t, tt.wantEmbedding, cfg.EmbeddingHost)
			assert.Equal(t, tt.wantRerank, cfg.RerankHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "all-minilm",
			RerankProvider: RerankCrossEncoder,
			RerankHost:     "http://localhost:8080",
			RerankModel:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()

		err := cfg.Validate()
		assert.NoError(t, err)

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"unknown rerank provider", func(c *Config) { c.RerankProvider = "bogus" }, "RerankProvider"},
		{"missing rerank host", func(c *Config) { c.RerankHost = "" }, "RerankHost"},
		{"missing rerank model", func(c *Config) { c.RerankModel = "" }, "RerankModel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Validate()
	require.NoError(t, err)

	cfg = DefaultConfig()
	err = cfg.Validate()
	require.NoError(t, err)
}

type stubEmbedder struct {
	vec []float32
	err error
	got string
}

func (s *stubEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	s.got = text
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return nil, s.err
}

func TestProbeDimension(t *testing.T) {
	t.Run("returns vector length", func(t *testing.T) {
		e := &stubEmbedder{vec: make([]float32, 384)}
		dim, err := ProbeDimension(context.Background(), e)
		require.NoError(t, err)
		assert.Equal(t, 384, dim)
		assert.Equal(t, DimensionCanary, e.got)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := ProbeDimension(context.Background(), &stubEmbedder{vec: []float32{}})
		assert.ErrorIs(t, err, ErrEmptyEmbedding)
	})

	t.Run("embedder error propagates unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := ProbeDimension(context.Background(), &stubEmbedder{err: boom})
		assert.Equal(t, boom, err)
	})
}
