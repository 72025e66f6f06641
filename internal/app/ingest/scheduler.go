package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/okian/fishy/pkg/logger"
)

const defaultInterval = time.Hour

// Scheduler runs the pipeline on a fixed cadence and on demand.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	onStart  bool
	triggers chan string
	log      logger.Logger
	now      func() time.Time
}

// NewScheduler returns a scheduler for p. It does nothing until Run.
func NewScheduler(p *Pipeline, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pipeline: p,
		interval: defaultInterval,
		onStart:  true,
		triggers: make(chan string, 1),
		log:      logger.Get().Named("scheduler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger asks for a run as soon as possible. It returns false when a request
// is already pending; both are served by the same run.
func (s *Scheduler) Trigger(reason string) bool {
	select {
	case s.triggers <- reason:
		return true
	default:
		return false
	}
}

// Next returns the first interval boundary strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return t.Truncate(s.interval).Add(s.interval)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.onStart {
		s.run(ctx, TriggerStartup)
	}
	for {
		timer := time.NewTimer(time.Until(s.Next(s.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.run(ctx, TriggerSchedule)
		case reason := <-s.triggers:
			timer.Stop()
			s.run(ctx, reason)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if _, err := s.pipeline.Run(ctx, trigger); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Debug(ctx, "run coalesced", logger.String("trigger", trigger))
			return
		}
		if ctx.Err() == nil {
			s.log.Error(ctx, "ingestion run failed", logger.String("trigger", trigger), logger.Error(err))
		}
	}
}
