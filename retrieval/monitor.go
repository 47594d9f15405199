package retrieval

import (
	"time"

	"github.com/poiesic/ragstudio/core"
)

// Monitor provides hooks to observe the retrieval process.
// Implementations are shared by concurrent queries and must not keep
// per-query state.
type Monitor interface {
	Start(question string, mode core.Mode, k int)
	AfterVectorSearch(candidates []core.ScoredCandidate)
	AfterLexicalScoring(candidates []core.ScoredCandidate)
	AfterFusion(candidates []core.ScoredCandidate)
	AfterRerank(candidates []core.ScoredCandidate)
	Finish(mode core.Mode, results []core.ScoredCandidate, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.Mode, _ int)                                     {}
func (n *noopMonitor) AfterVectorSearch(_ []core.ScoredCandidate)                             {}
func (n *noopMonitor) AfterLexicalScoring(_ []core.ScoredCandidate)                           {}
func (n *noopMonitor) AfterFusion(_ []core.ScoredCandidate)                                   {}
func (n *noopMonitor) AfterRerank(_ []core.ScoredCandidate)                                   {}
func (n *noopMonitor) Finish(_ core.Mode, _ []core.ScoredCandidate, _ time.Duration, _ error) {}
