// Package crossencoder scores (query, passage) pairs with a remote
// cross-encoder such as cross-encoder/ms-marco-MiniLM-L-6-v2.
//
// The client speaks the rerank protocol shared by text-embeddings-inference
// and Infinity:
//
//	POST {host}/rerank
//	{"query": "...", "texts": ["...", "..."], "raw_scores": true}
//
//	[{"index": 1, "score": 8.3}, {"index": 0, "score": -2.1}]
//
// Results are realigned to input order before being returned.
package crossencoder
