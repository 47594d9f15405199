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


package ai

import (
	"errors"
	"strings"
)

// Rerank providers understood by Config.RerankProvider.
const (
	RerankCrossEncoder = "crossencoder"
	RerankLLM          = "llm"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey is sent as the bearer token. Local servers usually ignore it.
	APIKey string

	// RerankProvider selects the pairwise scorer: "crossencoder" or "llm".
	RerankProvider string

	// RerankHost is the base URL of the scoring service. For the cross-encoder
	// provider this is the service root; for the llm provider it is an
	// OpenAI-compatible API root.
	RerankHost string

	// RerankModel is the scoring model identifier.
	// Example: "cross-encoder/ms-marco-MiniLM-L-6-v2", "qwen2.5:3b"
	RerankModel string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key used by OpenAI-compatible clients.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithRerankProvider selects the scorer implementation.
func WithRerankProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.RerankProvider = provider
	}
}

// WithRerankHost sets the scoring service host URL.
func WithRerankHost(host string) ConfigOption {
	return func(c *Config) {
		c.RerankHost = host
	}
}

// WithRerankModel sets the scoring model identifier.
func WithRerankModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankModel = model
	}
}

// DefaultConfig returns a Config with sensible defaults for local services.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "all-minilm",
		RerankProvider: RerankCrossEncoder,
		RerankHost:     "http://localhost:8080",
		RerankModel:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to OpenAI-compatible hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc). The cross-encoder
// host is left alone apart from trailing slashes.
func (c *Config) Normalize() {
	c.RerankProvider = strings.ToLower(strings.TrimSpace(c.RerankProvider))
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	if c.RerankProvider == RerankLLM {
		c.RerankHost = withV1(c.RerankHost)
	} else {
		c.RerankHost = strings.TrimSuffix(c.RerankHost, "/")
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	switch c.RerankProvider {
	case RerankCrossEncoder, RerankLLM:
	default:
		return errors.New("ai config: RerankProvider must be crossencoder or llm")
	}
	if c.RerankHost == "" {
		return errors.New("ai config: RerankHost is required")
	}
	if c.RerankModel == "" {
		return errors.New("ai config: RerankModel is required")
	}
	return nil
}
