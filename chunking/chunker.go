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


package chunking

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/poiesic/ragstudio/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 900
	// DefaultChunkOverlap is the number of characters shared by neighbouring chunks.
	DefaultChunkOverlap = 150
)

// DefaultSeparators lists split boundaries from coarsest to finest:
// paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits documents into overlapping, bounded chunks.
// A Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	newID      func() string
	splitter   textsplitter.RecursiveCharacter
	logger     *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		c.size = size
		return nil
	}
}

// WithChunkOverlap sets how many characters neighbouring chunks share.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		c.overlap = overlap
		return nil
	}
}

// WithSeparators overrides the boundary preference order.
func WithSeparators(separators []string) Option {
	return func(c *Chunker) error {
		if len(separators) == 0 {
			return fmt.Errorf("%w: no separators", ErrInvalidChunkConfig)
		}
		c.separators = append([]string(nil), separators...)
		return nil
	}
}

// WithIDGenerator replaces the UUIDv4 generator used for new chunk ids.
func WithIDGenerator(gen func() string) Option {
	return func(c *Chunker) error {
		if gen == nil {
			return fmt.Errorf("%w: nil id generator", ErrInvalidChunkConfig)
		}
		c.newID = gen
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker. Without options it splits at 900 characters with
// 150 characters of overlap.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
		newID:      uuid.NewString,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	switch {
	case c.size <= 0:
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidChunkConfig, c.size)
	case c.overlap < 0:
		return nil, fmt.Errorf("%w: chunk overlap %d", ErrInvalidChunkConfig, c.overlap)
	case c.overlap >= c.size:
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, c.overlap, c.size)
	}

	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators(c.separators),
		textsplitter.WithKeepSeparator(true),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split breaks doc into chunks. A document that already carries a chunk id
// keeps it on its first fragment, so re-splitting a chunk that fits yields
// the same chunk.
func (c *Chunker) Split(doc core.Document) ([]core.Chunk, error) {
	if doc.Page != nil && *doc.Page < 1 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidDocument, core.ErrInvalidPage)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	pieces, err := c.splitter.SplitText(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSplitFailed, err)
	}

	chunks := make([]core.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunk := core.Chunk{
			Text:   piece,
			Source: doc.Source,
			Page:   doc.Page,
		}
		if len(chunks) == 0 {
			chunk.ChunkID = doc.ChunkID
		}
		chunks = append(chunks, chunk)
	}

	chunks = c.assign(chunks)
	c.logger.Debug("split document", "source", doc.Source, "page", pageAttr(doc.Page), "chunks", len(chunks))
	return chunks, nil
}

// SplitAll splits every document in order and concatenates the results.
func (c *Chunker) SplitAll(docs []core.Document) ([]core.Chunk, error) {
	var all []core.Chunk
	for i := range docs {
		chunks, err := c.Split(docs[i])
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// AssignIDs fills in missing chunk ids using the chunker's generator.
// Existing ids are never replaced.
func (c *Chunker) AssignIDs(chunks []core.Chunk) []core.Chunk {
	return c.assign(chunks)
}

func (c *Chunker) assign(chunks []core.Chunk) []core.Chunk {
	for i := range chunks {
		if chunks[i].ChunkID == "" {
			chunks[i].ChunkID = c.newID()
		}
	}
	return chunks
}

// AssignIDs fills in missing chunk ids with random UUIDs.
func AssignIDs(chunks []core.Chunk) []core.Chunk {
	for i := range chunks {
		if chunks[i].ChunkID == "" {
			chunks[i].ChunkID = uuid.NewString()
		}
	}
	return chunks
}

func pageAttr(page *int) any {
	if page == nil {
		return nil
	}
	return *page
}
