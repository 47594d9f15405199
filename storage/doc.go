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


// Package storage provides the vector index abstraction for ragstudio.
//
// This package defines the VectorIndex interface that decouples retrieval and
// ingestion from the storage backend. Two implementations exist:
//
//   - storage/badger: embedded BadgerDB index with brute-force cosine search
//   - storage/qdrant: remote Qdrant collection over its REST API
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.VectorIndex interface to enforce
// abstraction:
//
//	index, err := badger.NewIndex("/path/to/db") // returns storage.VectorIndex
//
// Internal constructors (newIndex, newBackend, etc.) may return concrete types
// since they're only used within the implementation package.
//
// # Collections
//
// A collection has a fixed dimension decided when it is created. Writing or
// ensuring with a different dimension fails with ErrDimensionMismatch instead
// of silently mixing vector spaces. When the embedding model changes the
// collection has to be rebuilt (see package reembed).
//
// # Usage
//
//	index, err := badger.NewMemoryIndex()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
//
//	err = index.EnsureCollection(ctx, "rag_docs", 384)
//	n, err := index.Upsert(ctx, "rag_docs", chunks)
//	hits, err := index.Search(ctx, "rag_docs", queryVector, 8)
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
//
// # Serialization
//
// Chunk records and collection metadata are encoded with mus-go. Decoding
// failures wrap ErrSerializationFailed.
package storage
