package loadtest

import (
	"context"
	"net/http"
	"sync"

	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

// fetchProfiles pulls the profile of every user concurrently. Users without
// a ledger entry are left out of the result.
func fetchProfiles(ctx context.Context, config *Config, client *HTTPClient, users []string) map[string]types.Profile {
	logger.Get().Named("loadtest").Info(ctx, "fetching profiles", logger.Int("users", len(users)))

	profiles := make([]types.Profile, len(users))
	found := make([]bool, len(users))

	jobs := make(chan int, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				status, err := client.Get(ctx, profilePath(config.List, users[i]), &profiles[i])
				if err != nil || status != http.StatusOK {
					continue
				}
				found[i] = true
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range users {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	out := make(map[string]types.Profile, len(users))
	for i, u := range users {
		if found[i] {
			out[u] = profiles[i]
		}
	}
	return out
}

func fetchLeaderboard(ctx context.Context, config *Config, client *HTTPClient) ([]types.LeaderboardEntry, error) {
	var entries []types.LeaderboardEntry
	status, err := client.Get(ctx, leaderboardPath(config.List, config.TopN), &entries)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("leaderboard", status)
	}
	return entries, nil
}
