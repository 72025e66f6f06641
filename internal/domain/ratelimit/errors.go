package ratelimit

import "errors"

// Sentinel errors for limiter operations.
var (
	ErrLimited          = errors.New("rate limited")
	ErrStoreUnavailable = errors.New("limiter store unavailable")
	ErrInvalidQuota     = errors.New("invalid quota")
)
