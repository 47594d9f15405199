// Package ragstudio wires the retrieval pipeline together.
//
// A Studio owns the vector index, the embedder, the reranker and the
// ingestion pipeline, and exposes the two core operations:
//
//	studio, err := ragstudio.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer studio.Close()
//
//	result, err := studio.Ingest(ctx, "docs/handbook.pdf")
//	answer, err := studio.Query(ctx, "how do I rotate keys?", "hybrid", 5)
//
// Query modes are "vector", "hybrid" and "rerank"; anything else is
// treated as "vector".
package ragstudio
