// Package server exposes the pipeline over HTTP.
//
// Routes:
//
//	POST /upload   multipart field "file"; stores and ingests the file
//	POST /chat     form fields question, mode (default vector), top_k (default 5)
//	GET  /healthz  liveness
//	GET  /metrics  prometheus exposition, when a metrics handler is set
package server
