package qdrant

import "errors"

var (
	// ErrInvalidURL is returned for a server URL without scheme or host.
	ErrInvalidURL = errors.New("invalid qdrant url")

	// ErrUnexpectedStatus is returned for non-2xx responses other than 404.
	ErrUnexpectedStatus = errors.New("unexpected qdrant response status")
)
