package loader

import "errors"

// ErrLoadFailed wraps every error raised while opening or parsing a file.
var ErrLoadFailed = errors.New("failed to load file")
