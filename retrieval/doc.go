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


// Package retrieval turns a question into a ranked list of chunks.
//
// Every query embeds the question and pulls max(k, overfetch) candidates
// from the vector index. The mode then decides what happens to that seed
// set:
//   - vector: the first k candidates are returned as ranked by similarity
//   - hybrid: BM25 scores the seed set, the lexical and vector rankings are
//     fused with equal weights and the first k are returned
//   - rerank: a pairwise scorer reorders the seed set and the best k are
//     returned
//
// Nothing is retried and no upstream error is hidden.
package retrieval
