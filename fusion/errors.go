package fusion

import "errors"

var (
	// ErrWeightsMismatch is returned when lists and weights differ in length.
	ErrWeightsMismatch = errors.New("number of weights does not match number of lists")

	// ErrInvalidWeight is returned for a negative weight.
	ErrInvalidWeight = errors.New("invalid fusion weight")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown fusion strategy")

	// ErrInvalidParameter is returned for an out of range strategy parameter.
	ErrInvalidParameter = errors.New("invalid fusion parameter")
)
