package chunking

import "errors"

var (
	// ErrInvalidChunkConfig is returned by New for impossible size/overlap settings.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

	// ErrSplitFailed wraps errors from the underlying splitter.
	ErrSplitFailed = errors.New("failed to split text")
)
