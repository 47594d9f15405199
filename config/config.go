package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/ragstudio/ai"
	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	BackendBadger = "badger"
	BackendQdrant = "qdrant"
)

// DefaultCollection is the collection chunks are stored in.
const DefaultCollection = "rag_docs"

// EmbeddingConfig configures the OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host   string `yaml:"host"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key,omitempty"`
}

// RerankConfig configures the pairwise relevance scorer.
type RerankConfig struct {
	Provider string `yaml:"provider"`
	Host     string `yaml:"host"`
	Model    string `yaml:"model"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key,omitempty"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Backend    string       `yaml:"backend"`
	Path       string       `yaml:"path"`
	Collection string       `yaml:"collection"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// ChunkingConfig configures how documents are split into chunks.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures query behaviour.
type RetrievalConfig struct {
	DefaultK       int     `yaml:"default_k"`
	Overfetch      int     `yaml:"overfetch"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	VectorWeight   float64 `yaml:"vector_weight"`
	FusionStrategy string  `yaml:"fusion_strategy"`
	SnippetLength  int     `yaml:"snippet_length"`
}

// IngestionConfig configures the embedding worker pool.
type IngestionConfig struct {
	BatchSize int `yaml:"batch_size"`
	PoolSize  int `yaml:"pool_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// Config is the root application configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Index     IndexConfig     `yaml:"index"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns a configuration for local services with an embedded
// Badger index under ./data.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Rerank.Provider == "" {
		cfg.Rerank.Provider = ai.RerankCrossEncoder
	}
	if cfg.Rerank.Host == "" {
		cfg.Rerank.Host = "http://localhost:8080"
	}
	if cfg.Rerank.Model == "" {
		cfg.Rerank.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendBadger
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join("data", "index")
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = DefaultCollection
	}
	if cfg.Index.Qdrant.URL == "" {
		cfg.Index.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 900
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 150
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.Overfetch == 0 {
		cfg.Retrieval.Overfetch = 8
	}
	if cfg.Retrieval.LexicalWeight == 0 && cfg.Retrieval.VectorWeight == 0 {
		cfg.Retrieval.LexicalWeight = 0.5
		cfg.Retrieval.VectorWeight = 0.5
	}
	if cfg.Retrieval.FusionStrategy == "" {
		cfg.Retrieval.FusionStrategy = "rrf"
	}
	if cfg.Retrieval.SnippetLength == 0 {
		cfg.Retrieval.SnippetLength = 300
	}
	if cfg.Ingestion.BatchSize == 0 {
		cfg.Ingestion.BatchSize = 32
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = filepath.Join("data", "uploads")
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
}

// Validate checks ranges and enumerations. Zero values are expected to have
// been filled by Load or Default.
func (c *Config) Validate() error {
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	switch c.Index.Backend {
	case BackendBadger:
		if c.Index.Path == "" {
			return fmt.Errorf("%w: index.path is required for the badger backend", ErrInvalidConfig)
		}
	case BackendQdrant:
		if c.Index.Qdrant.URL == "" {
			return fmt.Errorf("%w: index.qdrant.url is required for the qdrant backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: index.backend must be badger or qdrant, got %q", ErrInvalidConfig, c.Index.Backend)
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("%w: index.collection is required", ErrInvalidConfig)
	}
	if c.Chunking.Size < 1 {
		return fmt.Errorf("%w: chunking.size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap must be in [0, size)", ErrInvalidConfig)
	}
	if c.Retrieval.DefaultK < 1 {
		return fmt.Errorf("%w: retrieval.default_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.Overfetch < 1 {
		return fmt.Errorf("%w: retrieval.overfetch must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		return fmt.Errorf("%w: retrieval weights must not be negative", ErrInvalidConfig)
	}
	if c.Retrieval.SnippetLength < 1 {
		return fmt.Errorf("%w: retrieval.snippet_length must be positive", ErrInvalidConfig)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("%w: ingestion.batch_size must be positive", ErrInvalidConfig)
	}
	if c.Ingestion.PoolSize < 0 {
		return fmt.Errorf("%w: ingestion.pool_size must not be negative", ErrInvalidConfig)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("%w: server.max_upload_mb must be positive", ErrInvalidConfig)
	}
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AI returns the embedding and rerank settings in the form the ai
// packages expect.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithRerankProvider(c.Rerank.Provider),
		ai.WithRerankHost(c.Rerank.Host),
		ai.WithRerankModel(c.Rerank.Model),
	)
}
