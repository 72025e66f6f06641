package loadtest

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

// planDraws builds one first draw per user followed by the repeat draws. The
// repeats come after every first draw so each one lands inside an open window.
func planDraws(config *Config) (first, repeats []Draw) {
	first = make([]Draw, config.Users)
	for i := range first {
		first[i] = Draw{UserID: config.UserPrefix + "-" + uuid.NewString()[:8]}
	}
	repeats = make([]Draw, 0, config.Users*config.Repeat)
	for r := 0; r < config.Repeat; r++ {
		for _, d := range first {
			repeats = append(repeats, Draw{UserID: d.UserID, Repeat: true})
		}
	}
	return first, repeats
}

// fireDraws submits draws concurrently through a worker pool and tallies the answers.
func fireDraws(ctx context.Context, config *Config, client *HTTPClient, draws []Draw, stats *Stats) []Outcome {
	log := logger.Get().Named("loadtest")
	log.Info(ctx, "firing draws", logger.Int("draws", len(draws)), logger.Int("workers", config.Workers))

	var (
		fired, allowed, limited, failed atomic.Int64
		mu                              sync.Mutex
		lastReport                      time.Time
	)
	outcomes := make([]Outcome, len(draws))

	jobs := make(chan int, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out := fireOne(ctx, client, config.List, draws[i])
				outcomes[i] = out

				fired.Add(1)
				switch out.Status {
				case http.StatusOK:
					allowed.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				default:
					failed.Add(1)
				}

				if !config.Verbose {
					continue
				}
				mu.Lock()
				if time.Since(lastReport) >= progressInterval {
					lastReport = time.Now()
					log.Info(ctx, "progress",
						logger.Int64("fired", fired.Load()),
						logger.Int("total", len(draws)),
						logger.Int64("allowed", allowed.Load()),
						logger.Int64("limited", limited.Load()),
						logger.Int64("failed", failed.Load()))
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range draws {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	stats.DrawsFired += int(fired.Load())
	stats.DrawsAllowed += int(allowed.Load())
	stats.DrawsLimited += int(limited.Load())
	stats.DrawsFailed += int(failed.Load())
	return outcomes[:int(fired.Load())]
}

func fireOne(ctx context.Context, client *HTTPClient, list string, d Draw) Outcome {
	var res types.DrawResponse
	status, err := client.Post(ctx, drawPath(list), d.UserID, nil, &res)
	out := Outcome{Draw: d, Status: status}
	if err != nil {
		out.Status = 0
		return out
	}
	if status == http.StatusOK {
		out.Points = res.PointsAwarded
		out.Item = res.Item.Filename
	}
	return out
}
