// Package qdrant implements storage.VectorIndex on a Qdrant server.
//
// Requests go through langchaingo's vectorstores/qdrant.DoRequest, which adds
// the api-key header and waits for writes to be applied. Each chunk becomes a
// point whose payload carries chunk_id, text, source, page and seq. Seq is a
// per-collection insertion counter used to order scans and to break score
// ties deterministically. Upserting an existing point keeps its seq.
//
// Qdrant does not order equal scores, so Search fetches one hit beyond k. If
// that hit ties the k-th, every point at or above the tied score is fetched
// with score_threshold and the group is sorted by seq before truncating.
//
// Seq numbers for new points are handed out by this process. Two processes
// writing the same collection at once can produce duplicate seq values;
// ordering among those points is then unspecified.
package qdrant
