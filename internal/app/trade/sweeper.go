package trade

import (
	"context"
	"errors"
	"time"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// SweepResult counts what one Sweep changed.
type SweepResult struct {
	Expired   int
	Recovered int
	Deleted   int
}

// Sweep expires overdue pending sessions, fails sessions stuck in processing
// and deletes resolved sessions older than the retention period. It covers
// timers lost to restarts or held by other processes.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := e.now()
	overdue, err := e.sessions.Overdue(ctx, now, sweepBatch)
	if err != nil {
		return res, err
	}
	for _, s := range overdue {
		if _, err := e.Expire(ctx, s.ID); err != nil {
			if errors.Is(err, ErrSessionTerminal) {
				continue
			}
			return res, err
		}
		res.Expired++
	}

	// a stalled claim only proves nothing moved when acceptance commits
	// with the swap
	if e.settles {
		if res.Recovered, err = e.recoverStalled(ctx, now); err != nil {
			return res, err
		}
	}

	res.Deleted, err = e.sessions.DeleteResolvedBefore(ctx, now.Add(-e.retention))
	if err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) recoverStalled(ctx context.Context, now time.Time) (int, error) {
	stalled, err := e.sessions.Stalled(ctx, now.Add(-e.stallTime), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range stalled {
		failed, err := e.transition(ctx, s.ID, model.TradeProcessing, model.TradeFailed, ReasonStalled)
		if err != nil {
			if errors.Is(err, ErrSessionTerminal) {
				continue
			}
			return n, err
		}
		e.finish(ctx, failed)
		n++
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := e.Sweep(ctx)
			if err != nil {
				e.log.Error(ctx, "trade sweep failed", logger.Error(err))
				continue
			}
			if res != (SweepResult{}) {
				e.log.Debug(ctx, "trade sweep",
					logger.Int("expired", res.Expired),
					logger.Int("recovered", res.Recovered),
					logger.Int("deleted", res.Deleted))
			}
		}
	}
}
