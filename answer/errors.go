package answer

import "errors"

// ErrInvalidSnippetLength is returned for a non-positive snippet length.
var ErrInvalidSnippetLength = errors.New("snippet length must be positive")
