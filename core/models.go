package core

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a deterministic 64-bit content key.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Document is raw text produced by a loader, before chunking.
// It is immutable once produced.
type Document struct {
	Text    string
	Source  string // Origin identifier, usually the file path
	Page    *int   // 1-based page number for paginated sources
	ChunkID string // Set when the document is itself a previously produced chunk
}

// Chunk is a bounded fragment of a Document and the unit of retrieval.
type Chunk struct {
	ChunkID string
	Text    string
	Source  string
	Page    *int
}

// AsDocument turns a chunk back into a Document so it can be re-chunked
// without losing its identifier.
func (c Chunk) AsDocument() Document {
	return Document{
		Text:    c.Text,
		Source:  c.Source,
		Page:    c.Page,
		ChunkID: c.ChunkID,
	}
}

// Key returns the identity used for deduplication. Chunks without an id
// fall back to a hash of their text.
func (c Chunk) Key() string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	return "content:" + strconv.FormatUint(uint64(IDFromContent(strings.TrimSpace(c.Text))), 16)
}

// Citation returns the provenance record for the chunk.
func (c Chunk) Citation() Citation {
	return Citation{
		ChunkID: c.ChunkID,
		Source:  c.Source,
		Page:    c.Page,
	}
}

// IndexedChunk is a Chunk together with its embedding vector.
// The vector index is its sole writer.
type IndexedChunk struct {
	Chunk
	Vector []float32
}

// ScoredCandidate is a Chunk with a relevance score. It lives for the
// duration of a single query.
type ScoredCandidate struct {
	Chunk
	Score float64
}

// Citation identifies the provenance of a piece of evidence.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	Source  string `json:"source"`
	Page    *int   `json:"page"`
}

// AnswerResult is the response to a query.
type AnswerResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// IngestResult reports the outcome of ingesting a single file.
type IngestResult struct {
	Source        string `json:"file"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// CollectionInfo describes a vector index collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Distance  string
	Count     int
}

// Chunks strips scores from a ranked candidate list, preserving order.
func Chunks(candidates []ScoredCandidate) []Chunk {
	out := make([]Chunk, len(candidates))
	for i, c := range candidates {
		out[i] = c.Chunk
	}
	return out
}

// IntPtr returns a pointer to v. Handy for optional page numbers.
func IntPtr(v int) *int {
	return &v
}
