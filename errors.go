package ragstudio

import "errors"

// ErrNotReady is returned when the collection could not be prepared,
// usually because the embedding service is unreachable or its dimension
// disagrees with the existing collection. Unreachable services are retried
// on the next call; a dimension conflict is remembered for the lifetime of
// the Studio.
var ErrNotReady = errors.New("collection not ready")
