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


// Package ai provides abstractions for the model services used by ragstudio.
//
// This package defines interfaces for text embeddings and pairwise relevance
// scoring. Retrieval and ingestion depend on these abstractions rather than
// on concrete clients.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - Scorer: Scores (query, text) pairs for reranking
//   - AIProvider: Aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Embeddings and an LLM judge over OpenAI-compatible APIs
//   - ai/crossencoder: HTTP client for a cross-encoder rerank service
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder,
// crossencoder.NewScorer) return INTERFACE types so callers cannot couple to a
// concrete client. Mock constructors return CONCRETE types so tests can inject
// behavior and read call counts.
//
//	provider, err := openai.NewProvider(config) // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()         // returns *mock.MockEmbedder
//
// # Dimension Probing
//
// The embedding dimension is never configured. ProbeDimension embeds a fixed
// canary string once and uses the length of the result.
package ai
