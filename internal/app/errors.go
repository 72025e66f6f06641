package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/fishy/internal/domain/ratelimit"
)

// ErrUnknownAction reports a cooldown action outside the configured set.
var ErrUnknownAction = errors.New("unknown cooldown action")

// CooldownError reports a denied draw or command. errors.Is matches ratelimit.ErrLimited.
type CooldownError struct {
	Key     string
	ResetIn time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown: %s resets in %s", e.Key, e.ResetIn.Round(time.Second))
}

// Unwrap exposes the limiter kind.
func (e *CooldownError) Unwrap() error { return ratelimit.ErrLimited }
