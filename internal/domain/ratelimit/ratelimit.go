// Package ratelimit implements a fixed-window quota tracker keyed by string.
//
// A window opens on the first consumption for a key and lasts for the
// configured length. While it is open at most limit consumptions succeed;
// once it has elapsed the next access starts from zero. Bursts at window
// boundaries are accepted.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

// Usage is the state of one key's current window.
type Usage struct {
	Count   int
	ResetIn time.Duration // time until the window closes; the full length when none is open
}

// Store persists windows. Implementations must make Consume atomic per key.
type Store interface {
	// Peek reports the current window without consuming.
	Peek(ctx context.Context, key string, window time.Duration) (Usage, error)
	// Consume increments the window if it holds fewer than limit consumptions.
	// The returned bool reports whether the increment happened.
	Consume(ctx context.Context, key string, limit int, window time.Duration) (Usage, bool, error)
	// Reset drops the window for key.
	Reset(ctx context.Context, key string) error
}

// Decision is the answer to a quota question.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter answers quota questions against a Store.
type Limiter struct {
	store    Store
	failOpen bool
	log      logger.Logger
}

// New creates a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ratelimit")
	}
	return l
}

// Key builds the limiter key for a user action.
func Key(userID, action string) string {
	return userID + ":" + action
}

// DrawAction is the per-list draw action name.
func DrawAction(listID string) string {
	return "draw-" + listID
}

// CommandAction is the per-command action name.
func CommandAction(name string) string {
	return "command:" + name
}

// Check previews whether one more consumption would be allowed. It never mutates.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := validate(limit, window); err != nil {
		return Decision{}, err
	}
	u, err := l.store.Peek(ctx, key, window)
	if err != nil {
		return l.storeFailure(ctx, "check", key, err)
	}
	return decide(u, limit, u.Count < limit), nil
}

// Commit records one consumption. It fails with ErrLimited when the window is full.
func (l *Limiter) Commit(ctx context.Context, key string, limit int, window time.Duration) error {
	d, err := l.Allow(ctx, key, limit, window)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s resets in %s", ErrLimited, key, d.ResetIn.Round(time.Millisecond))
	}
	return nil
}

// Allow atomically checks and consumes.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := validate(limit, window); err != nil {
		return Decision{}, err
	}
	u, ok, err := l.store.Consume(ctx, key, limit, window)
	if err != nil {
		return l.storeFailure(ctx, "allow", key, err)
	}
	d := decide(u, limit, ok)
	if ok {
		metrics.RecordCooldownDecision(kind(key), metrics.DecisionAllowed)
	} else {
		metrics.RecordCooldownDecision(kind(key), metrics.DecisionDenied)
	}
	return d, nil
}

// Clear drops any window for key.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) storeFailure(ctx context.Context, op, key string, err error) (Decision, error) {
	metrics.RecordCooldownDecision(kind(key), metrics.DecisionError)
	l.log.Error(ctx, "limiter store failed",
		logger.String("op", op),
		logger.String("key", key),
		logger.Bool("fail_open", l.failOpen),
		logger.Error(err))
	if l.failOpen {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func decide(u Usage, limit int, allowed bool) Decision {
	remaining := limit - u.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining, ResetIn: u.ResetIn}
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return fmt.Errorf("%w: limit %d window %s", ErrInvalidQuota, limit, window)
	}
	return nil
}

// kind reduces a key to a low cardinality label: "u1:draw-aredl" -> "draw".
func kind(key string) string {
	_, action, ok := strings.Cut(key, ":")
	if !ok {
		return "unknown"
	}
	if i := strings.IndexAny(action, "-:"); i > 0 {
		return action[:i]
	}
	return action
}

// IsLimited reports whether err means the quota is exhausted.
func IsLimited(err error) bool {
	return errors.Is(err, ErrLimited)
}
