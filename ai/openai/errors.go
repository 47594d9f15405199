package openai

import "errors"

var (
	// ErrNoChoices is returned when the chat model produces no completion.
	ErrNoChoices = errors.New("model returned no choices")

	// ErrMissingScore is returned when the judge response has no score field.
	ErrMissingScore = errors.New("judge response missing score")
)
