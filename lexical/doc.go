// Package lexical scores a candidate pool with Okapi BM25.
//
// The index is built per query from the candidates the vector search
// already returned, never from the whole corpus. Hybrid retrieval can
// therefore only promote chunks the vector side surfaced; in exchange the
// lexical side needs no persistent state and costs O(pool) per query.
package lexical
