package ledger

import "github.com/okian/fishy/pkg/logger"

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithRand replaces the uniform index source. f(n) must return a value in [0, n).
func WithRand(f func(n int) int) Option {
	return func(l *Ledger) {
		if f != nil {
			l.intn = f
		}
	}
}

// WithMaxLeaderboard caps leaderboard page size.
func WithMaxLeaderboard(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxBoard = n
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}
