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


package openai

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/ragstudio/ai"
)

// Provider pairs the chunk and query embedder with the LLM relevance judge,
// both built from one ai.Config. The cross-encoder scorer lives in its own
// package; Provider only serves the "llm" rerank provider.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	scorer   *Scorer
	logger   *slog.Logger
}

// NewProvider validates config and builds both clients. No request is made
// until the embedder or the judge is first used.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	scorer, err := newScorer(config)
	if err != nil {
		return nil, fmt.Errorf("relevance judge %s at %s: %w", config.RerankModel, config.RerankHost, err)
	}

	p := &Provider{
		config:   config,
		embedder: embedder,
		scorer:   scorer,
		logger:   slog.Default().With("component", "openai-provider"),
	}
	p.logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost, "embedding_model", config.EmbeddingModel,
		"judge_host", config.RerankHost, "judge_model", config.RerankModel)
	return p, nil
}

// Embedder returns the embedder used for chunks and questions.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Scorer returns the LLM relevance judge.
func (p *Provider) Scorer() ai.Scorer {
	return p.scorer
}

// Close holds no connections open; it exists to satisfy ai.AIProvider.
func (p *Provider) Close() error {
	return nil
}
