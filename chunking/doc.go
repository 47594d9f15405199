// Package chunking splits documents into bounded, overlapping chunks.
//
// Splitting is recursive: text is cut at the coarsest boundary first
// (paragraph, then line, sentence, word and finally single characters) and
// only pieces that are still too long descend to a finer boundary. Sizes are
// measured in characters, not bytes or tokens.
//
// Every chunk gets an id exactly once. Ids already present on the input are
// preserved; missing ones are filled with random UUIDs.
package chunking
