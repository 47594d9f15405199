package mock

import (
	"context"
	"strings"
	"sync"
)

// MockScorer is a test double for ai.Scorer.
// It allows custom behavior injection via function fields.
type MockScorer struct {
	// ScoreFunc is called by Score if set.
	// If nil, scores each text by how many query terms it contains.
	ScoreFunc func(ctx context.Context, query string, texts []string) ([]float32, error)

	mu        sync.Mutex
	callCount int
}

// NewMockScorer creates a mock scorer with default term-overlap behavior.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// Score returns one score per text.
func (m *MockScorer) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, query, texts)
	}

	terms := strings.Fields(strings.ToLower(query))
	scores := make([]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				scores[i]++
			}
		}
	}
	return scores, nil
}

// CallCount returns the number of times Score was called.
func (m *MockScorer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockScorer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ScoreFunc = nil
}
