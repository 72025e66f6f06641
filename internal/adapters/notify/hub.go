package notify

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/metrics"
)

const defaultSubscriberBuffer = 32

// Hub fans events out to in-process subscribers. Slow subscribers lose events
// rather than block delivery to everyone else.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
}

type subscription struct {
	user string // "" receives every event
	ch   chan model.TradeEvent
}

// NewHub returns an empty Hub. buffer <= 0 uses a default per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe registers a subscriber for events addressed to user, or all
// events when user is empty. The returned cancel func closes the channel.
func (h *Hub) Subscribe(user string) (<-chan model.TradeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscription{user: user, ch: make(chan model.TradeEvent, h.buffer)}
	h.subs[id] = sub
	metrics.AddWSClients(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(sub.ch)
			metrics.AddWSClients(-1)
		})
	}
	return sub.ch, cancel
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Name implements worker.Sink.
func (h *Hub) Name() string { return "hub" }

// Deliver implements worker.Sink.
func (h *Hub) Deliver(_ context.Context, e model.TradeEvent) error { //nolint:gocritic // hugeParam: event passed by value
	recipients := e.Recipients()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.user != "" && !slices.Contains(recipients, sub.user) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
	return nil
}
