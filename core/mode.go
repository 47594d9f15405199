package core

import "strings"

// Mode selects the retrieval strategy for a query.
type Mode int

const (
	// ModeVector returns the nearest neighbours from the vector index.
	ModeVector Mode = iota
	// ModeHybrid fuses lexical scoring over the vector candidates with the vector ranking.
	ModeHybrid
	// ModeRerank reorders the vector candidates with a pairwise relevance scorer.
	ModeRerank
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeRerank:
		return "rerank"
	default:
		return "vector"
	}
}

// ParseMode maps a mode name to a Mode. Matching is case-insensitive.
// Unrecognized names, including the empty string, select ModeVector.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vector":
		return ModeVector
	case "hybrid":
		return ModeHybrid
	case "rerank":
		return ModeRerank
	default:
		return ModeVector
	}
}

// Modes lists every supported mode in declaration order.
func Modes() []Mode {
	return []Mode{ModeVector, ModeHybrid, ModeRerank}
}
