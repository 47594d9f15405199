package config

import "errors"

// ErrInvalidConfig is returned when a configuration file cannot be parsed
// or a value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")
