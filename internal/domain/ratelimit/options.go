package ratelimit

import (
	"time"

	"github.com/okian/fishy/pkg/logger"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen allows requests when the store errors. The default denies them.
func WithFailOpen(open bool) Option {
	return func(l *Limiter) { l.failOpen = open }
}

// WithLogger sets the limiter logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
