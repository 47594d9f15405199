// Package reembed re-embeds the chunks of an existing collection with a
// new or updated embedding model.
//
// Chunks are read from a source collection in insertion order, embedded in
// batches with retry and exponential backoff, normalized and written to a
// target collection sized for the new model. Progress is reported as a
// single updating line.
package reembed
