package ingest

import (
	"time"

	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/pkg/logger"
)

// SourceFactory builds the adapter for a list.
type SourceFactory func(list catalog.List) (sources.Source, error)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithSourceFactory replaces sources.New, mainly for tests.
func WithSourceFactory(f SourceFactory) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.factory = f
		}
	}
}

// WithSourceOptions passes options to every adapter built by the default factory.
func WithSourceOptions(opts ...sources.Option) Option {
	return func(p *Pipeline) {
		p.sourceOpts = append(p.sourceOpts, opts...)
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the period between scheduled runs. Runs are aligned to
// multiples of the interval, so an hour fires at the top of every hour.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRunOnStart makes Run refresh everything before waiting for the first tick.
func WithRunOnStart(on bool) SchedulerOption {
	return func(s *Scheduler) {
		s.onStart = on
	}
}
