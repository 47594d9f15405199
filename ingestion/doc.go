// Package ingestion turns files into indexed chunks.
//
// The Pipeline type runs the ingestion workflow for a file:
//   - Loading it into documents by file type
//   - Splitting the documents into chunks
//   - Embedding chunk texts in batches on a worker pool
//   - Removing chunks left from an earlier ingest of the same path
//   - Upserting the embedded chunks into the vector index
//
// Unlike query handling, ingestion returns only after the chunks are
// written, so the reported count is what a following query can see.
// A Watcher feeds a pipeline from filesystem events.
package ingestion
