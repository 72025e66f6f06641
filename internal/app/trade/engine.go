// Package trade runs the two-party item exchange.
//
// A request creates a pending session. Exactly one of accept, reject or
// expiry resolves it: each is a compare-and-set on the session state, so the
// first resolver wins and everyone else sees ErrSessionTerminal. Accept claims
// the session (pending -> processing) before touching any ledger row, then
// performs the swap in one store transaction. When the session store is also
// the ledger, processing -> accepted commits inside that same transaction.
package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultTimeout   = 120 * time.Second
	defaultRetention = time.Hour
	defaultStallTime = time.Minute
	sweepBatch       = 100
	callbackTimeout  = 10 * time.Second
)

// Failure reasons recorded on failed sessions.
const (
	ReasonOwnership = "an item changed hands before the trade completed"
	ReasonStorage   = "storage error"
	ReasonStalled   = "trade was interrupted before it completed"
)

// Notifier receives session state changes.
type Notifier interface {
	Notify(ctx context.Context, e model.TradeEvent)
}

// Holdings answers the ownership and item existence checks done at request time.
type Holdings interface {
	ItemCount(ctx context.Context, userID, listID, filename string) (int, error)
}

// Items resolves filenames against the cache.
type Items interface {
	ItemByFilename(ctx context.Context, listID, filename string) (model.CachedItem, error)
}

// Request proposes giving Give to Target in exchange for Want.
type Request struct {
	ListID    string
	Requester string
	Target    string
	Give      string
	Want      string
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, model.TradeEvent) {}

// Engine coordinates trade sessions.
type Engine struct {
	catalog   *catalog.Catalog
	items     Items
	holdings  Holdings
	swapper   repository.Swapper
	sessions  repository.SessionStore
	notifier  Notifier
	timeout   time.Duration
	retention time.Duration
	stallTime time.Duration
	settles   bool
	now       func() time.Time
	newID     func() string
	log       logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New returns an Engine.
func New(cat *catalog.Catalog, items Items, holdings Holdings, swapper repository.Swapper, sessions repository.SessionStore, opts ...Option) *Engine {
	e := &Engine{
		catalog:   cat,
		items:     items,
		holdings:  holdings,
		swapper:   swapper,
		sessions:  sessions,
		notifier:  noopNotifier{},
		timeout:   defaultTimeout,
		retention: defaultRetention,
		stallTime: defaultStallTime,
		settles:   sameStore(swapper, sessions),
		now:       time.Now,
		newID:     uuid.NewString,
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("trade")
	}
	return e
}

// Request validates and opens a pending session, arming its expiry timer.
func (e *Engine) Request(ctx context.Context, r Request) (model.TradeSession, error) {
	if r.Requester == r.Target {
		return model.TradeSession{}, ErrSelfTrade
	}
	if r.Give == r.Want {
		return model.TradeSession{}, ErrSameItem
	}
	if !e.catalog.Has(r.ListID) {
		return model.TradeSession{}, fmt.Errorf("%w: %q", catalog.ErrUnknownList, r.ListID)
	}
	for _, f := range []string{r.Give, r.Want} {
		if _, err := e.items.ItemByFilename(ctx, r.ListID, f); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.TradeSession{}, fmt.Errorf("%w: %s", ErrUnknownItem, f)
			}
			return model.TradeSession{}, fmt.Errorf("request: %w", err)
		}
	}
	if err := e.owns(ctx, r.Requester, r.ListID, r.Give); err != nil {
		return model.TradeSession{}, err
	}
	if err := e.owns(ctx, r.Target, r.ListID, r.Want); err != nil {
		return model.TradeSession{}, err
	}

	now := e.now()
	s := model.TradeSession{
		ID:        e.newID(),
		ListID:    r.ListID,
		Requester: r.Requester,
		Target:    r.Target,
		Give:      r.Give,
		Want:      r.Want,
		State:     model.TradePending,
		CreatedAt: now,
		UpdatedAt: now,
		Deadline:  now.Add(e.timeout),
	}
	if err := e.sessions.Create(ctx, s); err != nil {
		return model.TradeSession{}, fmt.Errorf("request: %w", err)
	}
	metrics.AddPendingTrades(1)
	metrics.RecordTrade(string(model.TradePending))
	e.arm(s.ID, e.timeout)
	e.notify(ctx, s)
	return s, nil
}

func (e *Engine) owns(ctx context.Context, user, listID, filename string) error {
	n, err := e.holdings.ItemCount(ctx, user, listID, filename)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("%w: %s does not hold %s", ErrOwnership, user, filename)
	}
	return nil
}

// Get returns a session.
func (e *Engine) Get(ctx context.Context, id string) (model.TradeSession, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return model.TradeSession{}, mapStoreErr(err)
	}
	return s, nil
}

// ListForUser returns recent sessions involving user.
func (e *Engine) ListForUser(ctx context.Context, user string, limit int) ([]model.TradeSession, error) {
	out, err := e.sessions.ListByUser(ctx, user, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

// Expire resolves a pending session as expired.
func (e *Engine) Expire(ctx context.Context, id string) (model.TradeSession, error) {
	e.disarm(id)
	return e.resolve(ctx, id, model.TradePending, model.TradeExpired, "")
}

// Reject lets the target decline a pending session.
func (e *Engine) Reject(ctx context.Context, id, actor string) (model.TradeSession, error) {
	if _, err := e.authorize(ctx, id, actor); err != nil {
		return model.TradeSession{}, err
	}
	s, err := e.resolve(ctx, id, model.TradePending, model.TradeRejected, "")
	if err == nil {
		e.disarm(id)
	}
	return s, err
}

// Accept lets the target complete a pending session.
func (e *Engine) Accept(ctx context.Context, id, actor string) (model.TradeSession, error) {
	cur, err := e.authorize(ctx, id, actor)
	if err != nil {
		return model.TradeSession{}, err
	}
	if cur.State == model.TradePending && !e.now().Before(cur.Deadline) {
		// the timer may live in another process; resolve it here
		if _, err := e.Expire(ctx, id); err != nil && !errors.Is(err, ErrSessionTerminal) {
			return model.TradeSession{}, err
		}
		return model.TradeSession{}, fmt.Errorf("%w: %s expired", ErrSessionTerminal, id)
	}

	s, err := e.transition(ctx, id, model.TradePending, model.TradeProcessing, "")
	if err != nil {
		return model.TradeSession{}, err
	}
	e.disarm(id)
	metrics.AddPendingTrades(-1)

	req := repository.SwapRequest{
		ListID:    s.ListID,
		Requester: s.Requester,
		Target:    s.Target,
		Give:      s.Give,
		Want:      s.Want,
	}
	if e.settles {
		req.SessionID = id
		req.At = e.now()
	}
	start := time.Now()
	swapErr := e.swapper.Swap(ctx, req)
	metrics.RecordTradeCommitLatency(float64(time.Since(start).Milliseconds()))

	if errors.Is(swapErr, repository.ErrConflict) {
		// the sweeper failed the claim before the swap committed
		return model.TradeSession{}, mapStoreErr(swapErr)
	}
	if swapErr != nil {
		reason := ReasonStorage
		if errors.Is(swapErr, repository.ErrNotOwned) {
			reason = ReasonOwnership
		} else {
			e.log.Error(ctx, "trade swap failed",
				logger.String("trade_id", id),
				logger.String("list_id", s.ListID),
				logger.Error(swapErr))
		}
		failed, err := e.transition(context.WithoutCancel(ctx), id, model.TradeProcessing, model.TradeFailed, reason)
		if err != nil {
			// nothing moved; the sweeper fails the stalled session later
			e.log.Error(ctx, "trade stuck in processing",
				logger.String("trade_id", id),
				logger.Error(err))
			return model.TradeSession{}, fmt.Errorf("accept: %w", err)
		}
		e.finish(ctx, failed)
		if reason == ReasonOwnership {
			return failed, fmt.Errorf("%w: %s", ErrOwnership, reason)
		}
		return failed, fmt.Errorf("accept: %w", swapErr)
	}

	done := s
	if e.settles {
		done.State = model.TradeAccepted
		done.Reason = ""
		done.UpdatedAt = req.At
	} else {
		done, err = e.transition(context.WithoutCancel(ctx), id, model.TradeProcessing, model.TradeAccepted, "")
		if err != nil {
			e.log.Error(ctx, "trade swapped but not marked accepted",
				logger.String("trade_id", id),
				logger.Error(err))
			return model.TradeSession{}, err
		}
	}
	e.finish(ctx, done)
	return done, nil
}

func (e *Engine) authorize(ctx context.Context, id, actor string) (model.TradeSession, error) {
	s, err := e.Get(ctx, id)
	if err != nil {
		return model.TradeSession{}, err
	}
	if s.State.Terminal() || s.State == model.TradeProcessing {
		return s, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, id, s.State)
	}
	if actor != s.Target {
		return s, ErrNotParticipant
	}
	return s, nil
}

// resolve moves a pending session straight to a terminal state.
func (e *Engine) resolve(ctx context.Context, id string, from, to model.TradeState, reason string) (model.TradeSession, error) {
	s, err := e.transition(ctx, id, from, to, reason)
	if err != nil {
		return model.TradeSession{}, err
	}
	metrics.AddPendingTrades(-1)
	e.finish(ctx, s)
	return s, nil
}

func (e *Engine) transition(ctx context.Context, id string, from, to model.TradeState, reason string) (model.TradeSession, error) {
	s, err := e.sessions.Transition(ctx, id, from, to, reason, e.now())
	if err != nil {
		return model.TradeSession{}, mapStoreErr(err)
	}
	return s, nil
}

func (e *Engine) finish(ctx context.Context, s model.TradeSession) { //nolint:gocritic // hugeParam: session passed by value
	metrics.RecordTrade(string(s.State))
	e.log.Info(ctx, "trade resolved",
		logger.String("trade_id", s.ID),
		logger.String("state", string(s.State)),
		logger.String("reason", s.Reason))
	e.notify(ctx, s)
}

func (e *Engine) notify(ctx context.Context, s model.TradeSession) { //nolint:gocritic // hugeParam: session passed by value
	e.notifier.Notify(context.WithoutCancel(ctx), model.TradeEvent{Session: s, At: e.now()})
}

func (e *Engine) arm(id string, after time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.timers[id] = time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()
		if _, err := e.Expire(ctx, id); err != nil && !errors.Is(err, ErrSessionTerminal) {
			e.log.Warn(ctx, "trade expiry failed", logger.String("trade_id", id), logger.Error(err))
		}
	})
}

func (e *Engine) disarm(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

// PendingTimers returns the number of armed expiry timers.
func (e *Engine) PendingTimers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Close stops every timer. Pending sessions are left for the sweeper.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// sameStore reports whether the swapper also holds the sessions, so the accept
// transition can share the swap transaction.
func sameStore(swapper repository.Swapper, sessions repository.SessionStore) bool {
	ss, ok := swapper.(repository.SessionStore)
	return ok && ss == sessions
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrSessionTerminal, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	default:
		return err
	}
}
