package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/fishy/internal/domain/model"
)

// MemorySessionStore keeps trade sessions in process memory. It is safe for
// concurrent use but only coordinates resolvers inside one process.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]model.TradeSession
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.TradeSession)}
}

// Create implements SessionStore.
func (m *MemorySessionStore) Create(_ context.Context, ts model.TradeSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[ts.ID]; ok {
		return fmt.Errorf("%w: session %s exists", ErrConflict, ts.ID)
	}
	m.sessions[ts.ID] = ts
	return nil
}

// Get implements SessionStore.
func (m *MemorySessionStore) Get(_ context.Context, id string) (model.TradeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.sessions[id]
	if !ok {
		return model.TradeSession{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return ts, nil
}

// Transition implements SessionStore.
func (m *MemorySessionStore) Transition(_ context.Context, id string, from, to model.TradeState, reason string, now time.Time) (model.TradeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.sessions[id]
	if !ok {
		return model.TradeSession{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if ts.State != from {
		return ts, fmt.Errorf("%w: session %s is %s, not %s", ErrConflict, id, ts.State, from)
	}
	ts.State = to
	ts.Reason = reason
	ts.UpdatedAt = now
	m.sessions[id] = ts
	return ts, nil
}

// Overdue implements SessionStore.
func (m *MemorySessionStore) Overdue(_ context.Context, now time.Time, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	m.mu.RLock()
	var out []model.TradeSession
	for _, ts := range m.sessions {
		if ts.State == model.TradePending && !ts.Deadline.After(now) {
			out = append(out, ts)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stalled implements SessionStore.
func (m *MemorySessionStore) Stalled(_ context.Context, cutoff time.Time, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	m.mu.RLock()
	var out []model.TradeSession
	for _, ts := range m.sessions {
		if ts.State == model.TradeProcessing && !ts.UpdatedAt.After(cutoff) {
			out = append(out, ts)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteResolvedBefore implements SessionStore.
func (m *MemorySessionStore) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ts := range m.sessions {
		if ts.State.Terminal() && ts.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// ListByUser implements SessionStore.
func (m *MemorySessionStore) ListByUser(_ context.Context, userID string, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	m.mu.RLock()
	var out []model.TradeSession
	for _, ts := range m.sessions {
		if ts.Requester == userID || ts.Target == userID {
			out = append(out, ts)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
