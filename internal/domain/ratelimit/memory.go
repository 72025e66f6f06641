package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
	size  time.Duration
}

func (w *window) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.size))
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string, size time.Duration) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || w.expired(now) {
		return Usage{Count: 0, ResetIn: size}, nil
	}
	return Usage{Count: w.count, ResetIn: w.start.Add(w.size).Sub(now)}, nil
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, key string, limit int, size time.Duration) (Usage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || w.expired(now) {
		w = &window{start: now, size: size}
		s.windows[key] = w
	}
	resetIn := w.start.Add(w.size).Sub(now)
	if w.count >= limit {
		return Usage{Count: w.count, ResetIn: resetIn}, false, nil
	}
	w.count++
	return Usage{Count: w.count, ResetIn: resetIn}, true, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Sweep drops expired windows and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, w := range s.windows {
		if w.expired(now) {
			delete(s.windows, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
