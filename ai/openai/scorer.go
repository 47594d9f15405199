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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragstudio/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const maxParseAttempts = 3

// Scorer implements ai.Scorer by asking a chat model to grade each
// (query, passage) pair from 0 to 10.
type Scorer struct {
	client llms.Model
	logger *slog.Logger
}

// judgement is the wrapper structure for the LLM's JSON response.
type judgement struct {
	Score *float64 `json:"score"`
}

// newScorer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newScorer(config *ai.Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.RerankHost),
		openai.WithToken(token(config.APIKey)),
		openai.WithModel(config.RerankModel),
	)
	if err != nil {
		return nil, err
	}

	return &Scorer{
		client: client,
		logger: slog.Default().With("component", "openai-scorer", "model", config.RerankModel),
	}, nil
}

// NewScorer creates an LLM relevance judge using the provided configuration.
// config.RerankHost must point at an OpenAI-compatible API.
//
// Returns ai.Scorer interface to enforce abstraction.
func NewScorer(config *ai.Config) (ai.Scorer, error) {
	return newScorer(config)
}

// Score grades every text against query. Pairs are judged one at a time so
// that a long candidate list never overflows the model context.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	scores := make([]float32, len(texts))
	for i, text := range texts {
		score, err := s.scorePair(ctx, query, text)
		if err != nil {
			return nil, fmt.Errorf("scoring passage %d: %w", i, err)
		}
		scores[i] = score
	}
	s.logger.Debug("scored passages", "count", len(texts))
	return scores, nil
}

func (s *Scorer) scorePair(ctx context.Context, query, passage string) (float32, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt()),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(buildUserPrompt(query, passage)),
			},
		},
	}

	// Try up to maxParseAttempts times in case of malformed JSON
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		response, err := s.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			s.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return 0, err
		}

		if len(response.Choices) < 1 {
			lastErr = ErrNoChoices
			s.logger.Warn("no choices returned from model", "attempt", attempt+1)
			continue
		}

		score, err := parseScore(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			s.logger.Warn("error parsing judge response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}
		return score, nil
	}

	s.logger.Error("failed to parse judge response after retries", "err", lastErr)
	return 0, lastErr
}

// parseScore extracts and clamps the score from a raw model response.
func parseScore(raw string) (float32, error) {
	text := repairJSON(stripCodeFence(raw))

	var j judgement
	if err := json.Unmarshal([]byte(text), &j); err != nil {
		return 0, err
	}
	if j.Score == nil {
		return 0, ErrMissingScore
	}
	score := *j.Score
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return float32(score), nil
}
