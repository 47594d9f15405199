// Package rerank reorders retrieved candidates with a pairwise relevance
// scorer such as a cross-encoder.
//
// Loading a scoring model is expensive, so the scorer is built lazily on
// the first non-empty request and then shared by every later call. If
// construction fails the error is kept and returned from then on; the
// factory is never retried.
package rerank
