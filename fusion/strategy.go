package fusion

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragstudio/core"
)

// Strategy names a way of turning ranked lists into fused scores.
type Strategy string

const (
	// StrategyReciprocalRank scores an item w / (c + rank) per list.
	StrategyReciprocalRank Strategy = "rrf"
	// StrategyMinMax min-max normalizes each list and sums w * norm.
	StrategyMinMax Strategy = "minmax"
)

// DefaultRankConstant is the c in w / (c + rank).
const DefaultRankConstant = 60

// ParseStrategy maps a configuration string onto a Strategy. The empty
// string selects StrategyReciprocalRank.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rrf", "reciprocal_rank":
		return StrategyReciprocalRank, nil
	case "minmax", "min_max":
		return StrategyMinMax, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// contribution returns the per-item scores a list adds, position-aligned
// with the list.
type contribution func(list []core.ScoredCandidate, weight float64) []float64

func reciprocalRank(c int) contribution {
	return func(list []core.ScoredCandidate, weight float64) []float64 {
		out := make([]float64, len(list))
		for rank := range list {
			out[rank] = weight / float64(c+rank+1)
		}
		return out
	}
}

func minMax(list []core.ScoredCandidate, weight float64) []float64 {
	out := make([]float64, len(list))
	if len(list) == 0 {
		return out
	}
	lo, hi := list[0].Score, list[0].Score
	for _, c := range list[1:] {
		lo = min(lo, c.Score)
		hi = max(hi, c.Score)
	}
	for i, c := range list {
		norm := 1.0
		if hi > lo {
			norm = (c.Score - lo) / (hi - lo)
		}
		out[i] = weight * norm
	}
	return out
}
