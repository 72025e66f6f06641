// Package bootstrap turns a Config into a running object graph shared by the
// server and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/fishy/internal/adapters/redisstore"
	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/adapters/sources"
	service "github.com/okian/fishy/internal/app"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/config"
	"github.com/okian/fishy/internal/domain/ratelimit"
	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

const janitorInterval = time.Minute

// InitLogger applies the logging part of cfg. An invalid level falls back to info.
func InitLogger(ctx context.Context, cfg *config.Config) error {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// InitMetrics applies the metrics part of cfg to the global metrics manager.
func InitMetrics(cfg *config.Config) error {
	buckets, err := cfg.MetricsBucketBounds()
	if err != nil {
		return err
	}
	labels, err := cfg.MetricsConstLabels()
	if err != nil {
		return err
	}
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(buckets),
		metrics.WithRefreshInterval(cfg.MetricsRefresh()),
		metrics.WithConstLabels(labels),
	)
	return nil
}

// Catalog returns the built-in lists with cfg.ListsFile applied on top.
func Catalog(cfg *config.Config) (*catalog.Catalog, error) {
	base := catalog.Default()
	if cfg.ListsFile == "" {
		return base, nil
	}
	return catalog.LoadOverrides(cfg.ListsFile, base)
}

// Runtime owns everything Build opened.
type Runtime struct {
	Config  *config.Config
	Store   *repository.SQLStore
	Limiter *ratelimit.Limiter
	Service *service.Service

	closers []func() error
}

// Build opens the store and limiter backend and assembles the service.
// Background goroutines it starts stop with ctx. extra options are applied last.
func Build(ctx context.Context, cfg *config.Config, extra ...service.Option) (*Runtime, error) {
	log := logger.Get().Named("bootstrap")
	rt := &Runtime{Config: cfg}

	cat, err := Catalog(cfg)
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, store.Close)

	limiter, err := rt.limiter(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Limiter = limiter

	opts := []service.Option{
		service.WithCatalog(cat),
		service.WithLimiter(limiter),
		service.WithDrawQuota(cfg.DrawsPerWindow, cfg.DrawWindow()),
		service.WithCommandCooldown(cfg.CommandWindow()),
		service.WithTradeTimeout(cfg.TradeTimeout()),
		service.WithSessionRetention(cfg.SessionRetention()),
		service.WithRefreshInterval(cfg.RefreshInterval()),
		service.WithRefreshOnStart(cfg.RefreshOnStart),
		service.WithQueueSize(cfg.NotifyQueueSize),
		service.WithWorkerCount(cfg.NotifyWorkers),
		service.WithDefaultList(cfg.DefaultList),
		service.WithMaxLeaderboard(cfg.MaxLeaderboardLimit),
		service.WithSourceOptions(
			sources.WithTimeout(cfg.FetchTimeout()),
			sources.WithRPS(cfg.FetchRPS),
			sources.WithGitDir(cfg.GitDir),
			sources.WithCredentials(cfg.GitUsername, cfg.GitToken),
		),
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, service.WithWebhook(cfg.WebhookURL, nil))
	}
	if cfg.SessionStore == config.SessionsMemory {
		opts = append(opts, service.WithSessionStore(repository.NewMemorySessionStore()))
	}

	svc, err := service.New(store, append(opts, extra...)...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc

	log.Info(ctx, "runtime ready",
		logger.String("db_driver", cfg.DBDriver),
		logger.String("limiter_backend", cfg.LimiterBackend),
		logger.String("session_store", cfg.SessionStore),
		logger.Int("lists", len(cat.All())))
	return rt, nil
}

func (rt *Runtime) limiter(ctx context.Context) (*ratelimit.Limiter, error) {
	cfg := rt.Config
	opt := ratelimit.WithFailOpen(cfg.LimiterFailOpen)
	if cfg.LimiterBackend == config.LimiterRedis {
		rs, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("limiter backend: %w", err)
		}
		rt.closers = append(rt.closers, rs.Close)
		return ratelimit.New(rs, opt), nil
	}
	ms := ratelimit.NewMemoryStore()
	go ms.RunJanitor(ctx, janitorInterval)
	return ratelimit.New(ms, opt), nil
}

// Close releases what Build opened, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
