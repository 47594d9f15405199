package storage

import (
	"testing"
	"time"

	"github.com/poiesic/ragstudio/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalChunkRecord(t *testing.T) {
	tests := []struct {
		name string
		rec  *ChunkRecord
	}{
		{
			name: "with page",
			rec: &ChunkRecord{
				Seq: 42,
				Chunk: core.IndexedChunk{
					Chunk:  core.Chunk{ChunkID: "c1", Text: "héllo wörld", Source: "a.pdf", Page: core.IntPtr(3)},
					Vector: []float32{0.1, -0.2, 0.3},
				},
			},
		},
		{
			name: "without page",
			rec: &ChunkRecord{
				Seq: 0,
				Chunk: core.IndexedChunk{
					Chunk:  core.Chunk{ChunkID: "c2", Text: "text", Source: "b.txt"},
					Vector: []float32{1},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalChunkRecord(tt.rec)
			decoded, err := UnmarshalChunkRecord(data)
			require.NoError(t, err)
			assert.Equal(t, tt.rec, decoded)
		})
	}
}

func TestUnmarshalChunkRecord_Invalid(t *testing.T) {
	rec := &ChunkRecord{
		Seq: 7,
		Chunk: core.IndexedChunk{
			Chunk:  core.Chunk{ChunkID: "c1", Text: "t", Source: "s"},
			Vector: []float32{1, 2, 3, 4},
		},
	}
	data := MarshalChunkRecord(rec)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"truncated vector", data[:len(data)-3]},
		{"truncated header", data[:2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalChunkRecord(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestMarshalUnmarshalCollectionMeta(t *testing.T) {
	meta := &CollectionMeta{
		Name:      "rag_docs",
		Dimension: 384,
		Distance:  DistanceCosine,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCollectionMeta(MarshalCollectionMeta(meta))
	require.NoError(t, err)
	assert.Equal(t, meta.Name, decoded.Name)
	assert.Equal(t, meta.Dimension, decoded.Dimension)
	assert.Equal(t, meta.Distance, decoded.Distance)
	assert.True(t, meta.CreatedAt.Equal(decoded.CreatedAt))

	_, err = UnmarshalCollectionMeta(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
