// Package notify delivers trade state changes to interested parties.
//
// The trade engine publishes into a bounded queue; a worker pool drains it
// into sinks. Sinks here: structured log, outbound webhook and an in-process
// Hub that the websocket endpoint subscribes to.
package notify

import (
	"context"

	"github.com/okian/fishy/internal/adapters/mq/queue"
	"github.com/okian/fishy/internal/domain/dedupe"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// Publisher enqueues trade events without blocking the caller. Each
// session state is published at most once.
type Publisher struct {
	queue queue.Queue
	seen  dedupe.Deduper
	log   logger.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDeduper replaces the default bounded in-memory deduper.
func WithDeduper(d dedupe.Deduper) PublisherOption {
	return func(p *Publisher) { p.seen = d }
}

// NewPublisher returns a Publisher writing to q.
func NewPublisher(q queue.Queue, opts ...PublisherOption) *Publisher {
	p := &Publisher{queue: q, log: logger.Get().Named("notify")}
	for _, opt := range opts {
		opt(p)
	}
	if p.seen == nil {
		p.seen = dedupe.NewInMemoryDeduper()
	}
	return p
}

// Notify implements trade.Notifier. A repeated state is skipped; a full
// queue drops the event with a warning and forgets it so a retry can pass.
func (p *Publisher) Notify(ctx context.Context, e model.TradeEvent) { //nolint:gocritic // hugeParam: event passed by value
	key := dedupe.Key(e)
	if p.seen.SeenAndRecord(ctx, key) {
		p.log.Debug(ctx, "duplicate trade event skipped", logger.String("key", key))
		return
	}
	if p.queue.Enqueue(ctx, e) {
		return
	}
	p.seen.Unrecord(ctx, key)
	p.log.Warn(ctx, "trade event dropped",
		logger.String("trade_id", e.Session.ID),
		logger.String("state", string(e.Session.State)),
		logger.Bool("queue_closed", p.queue.IsClosed()),
	)
}
