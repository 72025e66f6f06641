// Package service is the application layer: it wires the ledger, the trade
// engine, ingestion and the cooldown limiter behind one API used by the HTTP
// adapter and the admin CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/okian/fishy/internal/adapters/mq/queue"
	"github.com/okian/fishy/internal/adapters/mq/worker"
	"github.com/okian/fishy/internal/adapters/notify"
	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/app/ledger"
	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/ratelimit"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

// Store is everything the service persists.
type Store interface {
	repository.CacheStore
	repository.LedgerStore
	repository.Swapper
	repository.SessionStore
	repository.SettingsStore
	Ping(ctx context.Context) error
}

// Defaults.
const (
	defaultDrawLimit      = 1
	defaultDrawWindow     = time.Hour
	defaultCommandWindow  = 2 * time.Second
	defaultTradeTimeout   = 120 * time.Second
	defaultRetention      = time.Hour
	defaultSweepInterval  = 30 * time.Second
	defaultQueueSize      = 10_000
	defaultWorkerCount    = 4
	defaultList           = "aredl"
	defaultMaxLeaderboard = 100
	defaultHubBuffer      = 64
	defaultSearchLimit    = 25
	stopTimeout           = 30 * time.Second
)

// Stats is a snapshot of service internals.
type Stats struct {
	CachedItems      map[string]int `json:"cached_items"`
	Guilds           int            `json:"guilds"`
	PendingTimers    int            `json:"pending_trade_timers"`
	QueueLength      int            `json:"notify_queue_length"`
	Subscribers      int            `json:"subscribers"`
	RefreshRunning   bool           `json:"refresh_running"`
	LastRefresh      time.Time      `json:"last_refresh,omitempty"`
	LastRefreshFails int            `json:"last_refresh_failures"`
}

// Service is the application facade.
type Service struct {
	store    Store
	sessions repository.SessionStore
	catalog  *catalog.Catalog
	limiter  *ratelimit.Limiter

	ledger    *ledger.Ledger
	trades    *trade.Engine
	pipeline  *ingest.Pipeline
	scheduler *ingest.Scheduler
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	hub       *notify.Hub

	drawLimit       int
	drawWindow      time.Duration
	commandWindow   time.Duration
	tradeTimeout    time.Duration
	retention       time.Duration
	sweepInterval   time.Duration
	refreshInterval time.Duration
	refreshOnStart  bool
	sourceOpts      []sources.Option
	sourceFactory   ingest.SourceFactory
	queueSize       int
	workerCount     int
	webhookURL      string
	webhookClient   *http.Client
	defaultList     string
	maxLeaderboard  int
	intn            func(n int) int
	logger          logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a Service over store. Nothing runs until Start.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("service: nil store")
	}
	s := &Service{
		store:           store,
		sessions:        store,
		catalog:         catalog.Default(),
		drawLimit:       defaultDrawLimit,
		drawWindow:      defaultDrawWindow,
		commandWindow:   defaultCommandWindow,
		tradeTimeout:    defaultTradeTimeout,
		retention:       defaultRetention,
		sweepInterval:   defaultSweepInterval,
		refreshInterval: time.Hour,
		refreshOnStart:  true,
		queueSize:       defaultQueueSize,
		workerCount:     defaultWorkerCount,
		defaultList:     defaultList,
		maxLeaderboard:  defaultMaxLeaderboard,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.NewMemoryStore())
	}
	if !s.catalog.Has(s.defaultList) {
		return nil, fmt.Errorf("service: default list: %w", catalog.ErrUnknownList)
	}

	ledgerOpts := []ledger.Option{ledger.WithMaxLeaderboard(s.maxLeaderboard)}
	if s.intn != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithRand(s.intn))
	}
	s.ledger = ledger.New(s.catalog, store, store, ledgerOpts...)

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.hub = notify.NewHub(defaultHubBuffer)
	sinks := []worker.Sink{notify.NewLogSink(), s.hub}
	if s.webhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(s.webhookURL, s.webhookClient))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, sinks)

	s.trades = trade.New(s.catalog, store, store, store, s.sessions,
		trade.WithTimeout(s.tradeTimeout),
		trade.WithRetention(s.retention),
		trade.WithNotifier(notify.NewPublisher(s.queue)))

	pipeOpts := []ingest.Option{ingest.WithSourceOptions(s.sourceOpts...)}
	if s.sourceFactory != nil {
		pipeOpts = append(pipeOpts, ingest.WithSourceFactory(s.sourceFactory))
	}
	s.pipeline = ingest.NewPipeline(s.catalog, store, pipeOpts...)
	s.scheduler = ingest.NewScheduler(s.pipeline,
		ingest.WithInterval(s.refreshInterval),
		ingest.WithRunOnStart(s.refreshOnStart))

	return s, nil
}

// Start launches the notification workers, the refresh scheduler and the trade sweeper.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	// Workers stop when the queue closes so Stop can drain it.
	s.pool.Start(context.WithoutCancel(ctx))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.trades.RunSweeper(runCtx, s.sweepInterval)
	}()

	s.logger.Info(ctx, "service started",
		logger.Int("lists", len(s.catalog.All())),
		logger.Duration("refresh_interval", s.refreshInterval),
		logger.Int("workers", s.workerCount))
}

// Stop halts background work and drains pending notifications.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.trades.Close()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.trades.Close()

	stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer stop()
	if err := s.pool.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("service: stop workers: %w", err)
	}
	s.logger.Info(ctx, "service stopped")
	return nil
}

// Catalog returns the list catalogue.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Lists describes every list in catalogue order.
func (s *Service) Lists() []types.ListInfo {
	all := s.catalog.All()
	out := make([]types.ListInfo, 0, len(all))
	for _, l := range all {
		out = append(out, types.ListInfo{
			ID:       l.ID,
			Name:     l.Name,
			FullName: l.FullName,
			Cutoff:   l.Cutoff,
			Source:   string(l.Source.Kind),
		})
	}
	return out
}

// Draw consumes the beneficiary's draw cooldown for the list and then draws.
// actor and userID differ when drawing on behalf of someone else. The
// cooldown stays consumed if the draw itself fails.
func (s *Service) Draw(ctx context.Context, actor, userID, listID string) (model.DrawResult, error) {
	if userID == "" {
		userID = actor
	}
	if _, err := s.catalog.Get(listID); err != nil {
		return model.DrawResult{}, err
	}
	key := ratelimit.Key(userID, ratelimit.DrawAction(listID))
	d, err := s.limiter.Allow(ctx, key, s.drawLimit, s.drawWindow)
	if err != nil {
		return model.DrawResult{}, err
	}
	if !d.Allowed {
		return model.DrawResult{}, &CooldownError{Key: key, ResetIn: d.ResetIn}
	}
	return s.ledger.DrawFor(ctx, actor, userID, listID)
}

// Command consumes the per-user command cooldown. A zero window disables it.
func (s *Service) Command(ctx context.Context, userID, name string) error {
	if s.commandWindow <= 0 || userID == "" {
		return nil
	}
	key := ratelimit.Key(userID, ratelimit.CommandAction(name))
	d, err := s.limiter.Allow(ctx, key, 1, s.commandWindow)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &CooldownError{Key: key, ResetIn: d.ResetIn}
	}
	return nil
}

// quota maps an action name to its configured limit and window.
func (s *Service) quota(action string) (int, time.Duration, error) {
	switch {
	case strings.HasPrefix(action, ratelimit.DrawAction("")):
		if !s.catalog.Has(strings.TrimPrefix(action, ratelimit.DrawAction(""))) {
			return 0, 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
		}
		return s.drawLimit, s.drawWindow, nil
	case strings.HasPrefix(action, ratelimit.CommandAction("")) && s.commandWindow > 0:
		return 1, s.commandWindow, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// CheckCooldown previews the user's window for action without consuming it.
func (s *Service) CheckCooldown(ctx context.Context, userID, action string) (types.Cooldown, error) {
	limit, window, err := s.quota(action)
	if err != nil {
		return types.Cooldown{}, err
	}
	key := ratelimit.Key(userID, action)
	d, err := s.limiter.Check(ctx, key, limit, window)
	if err != nil {
		return types.Cooldown{}, err
	}
	return cooldown(key, d), nil
}

// CommitCooldown records one use of action. ratelimit.ErrLimited when exhausted.
func (s *Service) CommitCooldown(ctx context.Context, userID, action string) error {
	limit, window, err := s.quota(action)
	if err != nil {
		return err
	}
	return s.limiter.Commit(ctx, ratelimit.Key(userID, action), limit, window)
}

// ClearCooldown drops the user's window for action.
func (s *Service) ClearCooldown(ctx context.Context, userID, action string) error {
	if _, _, err := s.quota(action); err != nil {
		return err
	}
	return s.limiter.Clear(ctx, ratelimit.Key(userID, action))
}

func cooldown(key string, d ratelimit.Decision) types.Cooldown {
	return types.Cooldown{
		Key:       key,
		Allowed:   d.Allowed,
		Remaining: d.Remaining,
		ResetInMS: d.ResetIn.Milliseconds(),
	}
}

// RequestTrade opens a pending trade.
func (s *Service) RequestTrade(ctx context.Context, r trade.Request) (model.TradeSession, error) {
	return s.trades.Request(ctx, r)
}

// RespondTrade accepts or rejects a pending trade on behalf of actor.
func (s *Service) RespondTrade(ctx context.Context, id, actor string, accept bool) (model.TradeSession, error) {
	if accept {
		return s.trades.Accept(ctx, id, actor)
	}
	return s.trades.Reject(ctx, id, actor)
}

// Trade returns one session.
func (s *Service) Trade(ctx context.Context, id string) (model.TradeSession, error) {
	return s.trades.Get(ctx, id)
}

// Trades lists the user's sessions, newest first.
func (s *Service) Trades(ctx context.Context, userID string, limit int) ([]model.TradeSession, error) {
	return s.trades.ListForUser(ctx, userID, limit)
}

// Subscribe streams trade events for user; "" receives every event.
func (s *Service) Subscribe(userID string) (<-chan model.TradeEvent, func()) {
	return s.hub.Subscribe(userID)
}

// RefreshAll runs ingestion for every list now. ingest.ErrRunInProgress when one is running.
func (s *Service) RefreshAll(ctx context.Context) (ingest.Report, error) {
	return s.pipeline.RefreshAll(ctx)
}

// RefreshList runs ingestion for one list now.
func (s *Service) RefreshList(ctx context.Context, listID string) (ingest.ListResult, error) {
	return s.pipeline.RefreshList(ctx, listID)
}

// Leaderboard returns a page of standings.
func (s *Service) Leaderboard(ctx context.Context, listID string, limit, offset int) ([]types.LeaderboardEntry, error) {
	return s.ledger.LeaderboardPage(ctx, listID, limit, offset)
}

// Profile returns the user's standing on a list.
func (s *Service) Profile(ctx context.Context, userID, listID string) (model.Profile, error) {
	return s.ledger.Profile(ctx, userID, listID)
}

// Items returns the cached items of a list, up to limit (all when limit <= 0).
func (s *Service) Items(ctx context.Context, listID string, limit int) ([]model.CachedItem, error) {
	if _, err := s.catalog.Get(listID); err != nil {
		return nil, err
	}
	return s.store.ItemsUpTo(ctx, listID, limit)
}

// SearchItems matches cached item names case-insensitively.
func (s *Service) SearchItems(ctx context.Context, listID, query string, limit int) ([]model.CachedItem, error) {
	if _, err := s.catalog.Get(listID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return s.store.SearchItems(ctx, listID, query, limit)
}

// SetUserDefaultList stores the user's preferred list.
func (s *Service) SetUserDefaultList(ctx context.Context, userID, listID string) error {
	if _, err := s.catalog.Get(listID); err != nil {
		return err
	}
	return s.store.SetUserDefaultList(ctx, userID, listID)
}

// SetGuildDefaultList stores the guild's preferred list.
func (s *Service) SetGuildDefaultList(ctx context.Context, guildID, listID string) error {
	if _, err := s.catalog.Get(listID); err != nil {
		return err
	}
	return s.store.SetGuildDefaultList(ctx, guildID, listID)
}

// ResolveList picks the list for a command: explicit, then the user's
// default, then the guild's default, then the configured default.
func (s *Service) ResolveList(ctx context.Context, explicit, userID, guildID string) (string, error) {
	if explicit != "" {
		if _, err := s.catalog.Get(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if userID != "" {
		id, err := s.store.UserDefaultList(ctx, userID)
		if err != nil {
			return "", err
		}
		if s.catalog.Has(id) {
			return id, nil
		}
	}
	if guildID != "" {
		id, err := s.store.GuildDefaultList(ctx, guildID)
		if err != nil {
			return "", err
		}
		if s.catalog.Has(id) {
			return id, nil
		}
	}
	return s.defaultList, nil
}

// GuildJoined registers a deployment and asks the scheduler for a refresh.
func (s *Service) GuildJoined(ctx context.Context, g model.Guild) error { //nolint:gocritic // hugeParam: guild passed by value
	g.Enabled = true
	if err := s.store.UpsertGuild(ctx, g); err != nil {
		return err
	}
	queued := s.scheduler.Trigger(ingest.TriggerGuild)
	s.logger.Info(ctx, "guild joined",
		logger.String("guild_id", g.ID),
		logger.Int("members", g.MemberCount),
		logger.Bool("refresh_queued", queued))
	return nil
}

// GuildLeft disables a deployment.
func (s *Service) GuildLeft(ctx context.Context, guildID string) error {
	if err := s.store.SetGuildEnabled(ctx, guildID, false); err != nil {
		return err
	}
	s.logger.Info(ctx, "guild left", logger.String("guild_id", guildID))
	return nil
}

// Health reports whether the store answers.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns a snapshot of service internals.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	counts, err := s.store.ItemCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	guilds, err := s.store.CountGuilds(ctx)
	if err != nil {
		return Stats{}, err
	}
	last := s.pipeline.LastReport()
	return Stats{
		CachedItems:      counts,
		Guilds:           guilds,
		PendingTimers:    s.trades.PendingTimers(),
		QueueLength:      s.queue.Len(),
		Subscribers:      s.hub.Len(),
		RefreshRunning:   s.pipeline.Running(),
		LastRefresh:      last.Finished,
		LastRefreshFails: last.Failed(),
	}, nil
}
