// Package metrics exposes retrieval and ingestion activity as prometheus
// metrics. A Metrics value is plugged into the retriever and the ingestion
// pipeline as their monitor and served on /metrics by the HTTP server.
package metrics
