package answer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/ragstudio/core"
)

const (
	// DefaultSnippetLength is the number of runes of each chunk quoted as
	// evidence.
	DefaultSnippetLength = 300

	// NoInformation is the answer given when retrieval found nothing.
	NoInformation = "No supporting information found in the indexed documents."

	// Disclaimer closes every evidence answer; no text is generated.
	Disclaimer = "Tip: In a real app, you'd plug an LLM here to synthesize an answer grounded in these citations."

	evidenceHeader = "Most relevant evidence:"
	ellipsis       = "..."
)

// Assembler formats ranked chunks into an extractive answer.
type Assembler struct {
	snippetLength int
	logger        *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithSnippetLength sets how many runes of each chunk are quoted.
func WithSnippetLength(n int) Option {
	return func(a *Assembler) error {
		if n <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidSnippetLength, n)
		}
		a.snippetLength = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// New creates an Assembler.
func New(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		snippetLength: DefaultSnippetLength,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "answer")
	return a, nil
}

// Assemble builds the answer for question from chunks, which must already
// be in rank order. Chunks are neither reordered nor filtered; each one
// contributes a snippet line and a citation.
func (a *Assembler) Assemble(question string, chunks []core.Chunk) core.AnswerResult {
	if len(chunks) == 0 {
		return core.AnswerResult{Answer: NoInformation, Citations: []core.Citation{}}
	}

	var sb strings.Builder
	sb.WriteString("Q: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(evidenceHeader)
	sb.WriteString("\n")

	citations := make([]core.Citation, len(chunks))
	for i, c := range chunks {
		sb.WriteString("- ")
		sb.WriteString(Snippet(c.Text, a.snippetLength))
		sb.WriteString(ellipsis)
		sb.WriteString("\n")
		citations[i] = c.Citation()
	}

	sb.WriteString("\n")
	sb.WriteString(Disclaimer)

	a.logger.Debug("assembled answer", "evidence", len(chunks))
	return core.AnswerResult{Answer: sb.String(), Citations: citations}
}

// Snippet returns the first n runes of text after trimming surrounding
// whitespace.
func Snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
