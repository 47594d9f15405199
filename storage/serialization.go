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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragstudio/core"
)

// ChunkRecord is the stored form of an indexed chunk. Seq is the insertion
// sequence number used for stable ordering.
type ChunkRecord struct {
	Seq   uint64
	Chunk core.IndexedChunk
}

// CollectionMeta is the stored description of a collection.
type CollectionMeta struct {
	Name      string
	Dimension int
	Distance  string
	CreatedAt time.Time
}

// MarshalChunkRecord serializes a ChunkRecord to bytes.
func MarshalChunkRecord(rec *ChunkRecord) []byte {
	buf := make([]byte, sizeChunkRecord(rec))
	marshalChunkRecord(rec, buf)
	return buf
}

// UnmarshalChunkRecord deserializes a ChunkRecord from bytes.
func UnmarshalChunkRecord(data []byte) (*ChunkRecord, error) {
	rec, err := unmarshalChunkRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk record: %w", ErrSerializationFailed, err)
	}
	return rec, nil
}

// MarshalCollectionMeta serializes a CollectionMeta to bytes.
func MarshalCollectionMeta(meta *CollectionMeta) []byte {
	created := meta.CreatedAt.UnixNano()
	size := ord.String.Size(meta.Name) +
		varint.Int.Size(meta.Dimension) +
		ord.String.Size(meta.Distance) +
		varint.Int64.Size(created)
	buf := make([]byte, size)
	n := ord.String.Marshal(meta.Name, buf)
	n += varint.Int.Marshal(meta.Dimension, buf[n:])
	n += ord.String.Marshal(meta.Distance, buf[n:])
	varint.Int64.Marshal(created, buf[n:])
	return buf
}

// UnmarshalCollectionMeta deserializes a CollectionMeta from bytes.
func UnmarshalCollectionMeta(data []byte) (*CollectionMeta, error) {
	var (
		meta    CollectionMeta
		created int64
		n, m    int
		err     error
	)
	if meta.Name, m, err = ord.String.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: collection name: %w", ErrSerializationFailed, err)
	}
	n += m
	if meta.Dimension, m, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: collection dimension: %w", ErrSerializationFailed, err)
	}
	n += m
	if meta.Distance, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: collection distance: %w", ErrSerializationFailed, err)
	}
	n += m
	if created, _, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: collection created: %w", ErrSerializationFailed, err)
	}
	meta.CreatedAt = time.Unix(0, created).UTC()
	return &meta, nil
}

func sizeChunkRecord(rec *ChunkRecord) int {
	c := &rec.Chunk
	size := varint.Uint64.Size(rec.Seq) +
		ord.String.Size(c.ChunkID) +
		ord.String.Size(c.Text) +
		ord.String.Size(c.Source) +
		ord.Bool.Size(c.Page != nil)
	if c.Page != nil {
		size += varint.Int.Size(*c.Page)
	}
	size += varint.Int.Size(len(c.Vector))
	for _, v := range c.Vector {
		size += raw.Float32.Size(v)
	}
	return size
}

func marshalChunkRecord(rec *ChunkRecord, bs []byte) int {
	c := &rec.Chunk
	n := varint.Uint64.Marshal(rec.Seq, bs)
	n += ord.String.Marshal(c.ChunkID, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += ord.String.Marshal(c.Source, bs[n:])
	n += ord.Bool.Marshal(c.Page != nil, bs[n:])
	if c.Page != nil {
		n += varint.Int.Marshal(*c.Page, bs[n:])
	}
	n += varint.Int.Marshal(len(c.Vector), bs[n:])
	for _, v := range c.Vector {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalChunkRecord(bs []byte) (*ChunkRecord, error) {
	var (
		rec     ChunkRecord
		hasPage bool
		count   int
		n, m    int
		err     error
	)
	c := &rec.Chunk

	if rec.Seq, m, err = varint.Uint64.Unmarshal(bs); err != nil {
		return nil, err
	}
	n += m
	if c.ChunkID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if c.Text, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if c.Source, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if hasPage, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if hasPage {
		var page int
		if page, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
			return nil, err
		}
		n += m
		c.Page = &page
	}
	if count, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if count < 0 || count*4 > len(bs)-n {
		return nil, ErrTruncatedData
	}
	c.Vector = make([]float32, count)
	for i := range c.Vector {
		if c.Vector[i], m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
			return nil, err
		}
		n += m
	}
	return &rec, nil
}
