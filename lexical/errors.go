package lexical

import "errors"

// ErrInvalidParameter is returned when a BM25 parameter is out of range.
var ErrInvalidParameter = errors.New("invalid bm25 parameter")
