package loadtest

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidConfig  = errors.New("invalid load test config")
	ErrUnhealthy      = errors.New("service unhealthy")
	ErrUnexpectedCode = errors.New("unexpected status code")
	ErrInvariant      = errors.New("ledger invariant violated")
)

func statusError(what string, status int) error {
	return fmt.Errorf("%w: %s returned %d", ErrUnexpectedCode, what, status)
}
