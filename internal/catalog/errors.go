package catalog

import "errors"

// Sentinel errors for catalogue lookups and overrides.
var (
	ErrUnknownList = errors.New("unknown list")
	ErrInvalidList = errors.New("invalid list definition")
)
