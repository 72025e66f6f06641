package service

import (
	"net/http"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/ratelimit"
	"github.com/okian/fishy/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCatalog replaces the built-in list catalogue.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithLimiter sets the cooldown limiter. The default is fail-closed over a memory store.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithSessionStore keeps trade sessions somewhere other than the main store.
func WithSessionStore(ss repository.SessionStore) Option {
	return func(s *Service) {
		if ss != nil {
			s.sessions = ss
		}
	}
}

// WithDrawQuota sets how many draws a user gets per list per window.
func WithDrawQuota(limit int, window time.Duration) Option {
	return func(s *Service) {
		if limit > 0 && window > 0 {
			s.drawLimit = limit
			s.drawWindow = window
		}
	}
}

// WithCommandCooldown sets the per-user window between commands. Zero disables it.
func WithCommandCooldown(window time.Duration) Option {
	return func(s *Service) {
		if window >= 0 {
			s.commandWindow = window
		}
	}
}

// WithTradeTimeout sets how long a trade stays pending.
func WithTradeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tradeTimeout = d
		}
	}
}

// WithSessionRetention sets how long resolved trades are kept.
func WithSessionRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSweepInterval sets how often overdue trades are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRefreshInterval sets the scheduled ingestion period.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithRefreshOnStart runs ingestion when the service starts.
func WithRefreshOnStart(on bool) Option {
	return func(s *Service) {
		s.refreshOnStart = on
	}
}

// WithSourceOptions configures the list source adapters.
func WithSourceOptions(opts ...sources.Option) Option {
	return func(s *Service) {
		s.sourceOpts = append(s.sourceOpts, opts...)
	}
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithWebhook enables the webhook sink. A nil client uses a default one.
func WithWebhook(url string, client *http.Client) Option {
	return func(s *Service) {
		s.webhookURL = url
		s.webhookClient = client
	}
}

// WithDefaultList sets the list used when nothing else selects one.
func WithDefaultList(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.defaultList = id
		}
	}
}

// WithMaxLeaderboard caps leaderboard page size.
func WithMaxLeaderboard(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboard = n
		}
	}
}

// WithRand makes draws deterministic in tests.
func WithRand(f func(n int) int) Option {
	return func(s *Service) {
		s.intn = f
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSourceFactory replaces the list source adapters, mainly for tests.
func WithSourceFactory(f ingest.SourceFactory) Option {
	return func(s *Service) {
		s.sourceFactory = f
	}
}
