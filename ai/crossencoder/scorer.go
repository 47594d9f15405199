package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/ragstudio/ai"
	"github.com/tmc/langchaingo/httputil"
)

// maxErrorBody bounds how much of a failed response is echoed into errors.
const maxErrorBody = 512

// Scorer implements ai.Scorer against a cross-encoder rerank service.
type Scorer struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer) error

// WithHTTPClient overrides the HTTP client. Defaults to langchaingo's
// httputil.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scorer) error {
		if client != nil {
			s.client = client
		}
		return nil
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(s *Scorer) error {
		s.apiKey = key
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// newScorer is an internal constructor that returns the concrete type.
func newScorer(host, model string, opts ...Option) (*Scorer, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, ErrHostRequired
	}

	s := &Scorer{
		endpoint: host + "/rerank",
		model:    model,
		client:   httputil.DefaultClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "crossencoder", "model", model)
	return s, nil
}

// NewScorer creates a scorer that POSTs to {host}/rerank.
//
// Returns ai.Scorer interface to enforce abstraction.
func NewScorer(host, model string, opts ...Option) (ai.Scorer, error) {
	return newScorer(host, model, opts...)
}

// NewScorerFromConfig builds a scorer from the rerank section of an ai.Config.
func NewScorerFromConfig(config *ai.Config, opts ...Option) (ai.Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.APIKey != "" {
		opts = append([]Option{WithAPIKey(config.APIKey)}, opts...)
	}
	return newScorer(config.RerankHost, config.RerankModel, opts...)
}

// Score returns raw cross-encoder logits for each text, aligned with texts.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return []float32{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     s.model,
		Query:     query,
		Texts:     texts,
		RawScores: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.logger.Debug("scoring pairs", "count", len(texts))
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("rerank request failed", "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return align(results, len(texts))
}

// align places scores by their index. The service may return results
// sorted by score rather than input order.
func align(results []rerankResult, n int) ([]float32, error) {
	if len(results) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ai.ErrScoreCountMismatch, len(results), n)
	}
	scores := make([]float32, n)
	seen := make([]bool, n)
	for _, r := range results {
		if r.Index < 0 || r.Index >= n || seen[r.Index] {
			return nil, fmt.Errorf("%w: bad index %d", ai.ErrScoreCountMismatch, r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
