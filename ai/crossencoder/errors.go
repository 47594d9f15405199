package crossencoder

import "errors"

var (
	// ErrHostRequired is returned when no service host is configured.
	ErrHostRequired = errors.New("cross-encoder host is required")

	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected rerank response status")

	// ErrMalformedResponse is returned when the response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed rerank response")
)
