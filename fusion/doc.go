// Package fusion merges several ranked candidate lists into one weighted
// ranking, deduplicating chunks that more than one retriever returned.
//
// Two strategies are available. Reciprocal rank fusion only looks at
// positions, so lists with incomparable score scales (BM25 and cosine
// similarity) can be mixed directly. Min-max fusion normalizes each list's
// scores to [0, 1] and sums them, which keeps score gaps but is sensitive
// to outliers.
package fusion
