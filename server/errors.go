package server

import "errors"

var (
	// ErrServiceRequired is returned when no service is provided.
	ErrServiceRequired = errors.New("service required")

	// ErrUploadDirRequired is returned when no upload directory is provided.
	ErrUploadDirRequired = errors.New("upload directory required")

	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("invalid option")

	// ErrQuestionRequired is returned when /chat is called without a question.
	ErrQuestionRequired = errors.New("question required")

	// ErrInvalidTopK is returned when top_k is not an integer.
	ErrInvalidTopK = errors.New("top_k must be an integer")

	// ErrInvalidFilename is returned when an upload has no usable file name.
	ErrInvalidFilename = errors.New("invalid file name")
)
