package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/fishy/pkg/logger"
)

// Normalize fills defaults and rejects configs that cannot run.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	if c.List == "" {
		return fmt.Errorf("%w: list is required", ErrInvalidConfig)
	}
	if c.Users <= 0 {
		c.Users = DefaultUsers
	}
	if c.Repeat < 0 {
		return fmt.Errorf("%w: repeat must be >= 0", ErrInvalidConfig)
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserPrefix == "" {
		c.UserPrefix = DefaultUserPrefix
	}
	return nil
}

// Run executes a complete load run. It returns the stats even when
// verification fails; the error then wraps ErrInvariant.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Normalize(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadtest")

	log.Info(ctx, "starting load test",
		logger.String("baseURL", config.BaseURL),
		logger.String("list", config.List),
		logger.Int("users", config.Users),
		logger.Int("repeat", config.Repeat),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	first, repeats := planDraws(config)
	outcomes := fireDraws(ctx, config, client, first, stats)
	outcomes = append(outcomes, fireDraws(ctx, config, client, repeats, stats)...)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("draws interrupted: %w", err)
	}

	seen := tallyOutcomes(outcomes)
	users := make([]string, 0, len(first))
	for _, d := range first {
		users = append(users, d.UserID)
	}
	profiles := fetchProfiles(ctx, config, client, users)
	stats.ProfilesChecked = len(profiles)

	board, err := fetchLeaderboard(ctx, config, client)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board)

	stats.Violations = append(stats.Violations, verifyRepeats(outcomes, stats)...)
	stats.Violations = append(stats.Violations, verifyProfiles(seen, profiles)...)
	stats.Violations = append(stats.Violations, verifyLeaderboard(board)...)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if config.OutputFile != "" {
		if err := saveReport(config.OutputFile, stats); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, stats)

	if n := len(stats.Violations); n > 0 {
		for _, v := range stats.Violations {
			log.Error(ctx, "invariant violated", logger.String("detail", v))
		}
		return stats, fmt.Errorf("%w: %d violations", ErrInvariant, n)
	}
	log.Info(ctx, "load test passed")
	return stats, nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

func saveReport(filename string, stats *Stats) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, reportDirPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(filename, data, reportFilePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var allowedRate, drawsPerSecond float64
	if stats.DrawsFired > 0 {
		allowedRate = float64(stats.DrawsAllowed) / float64(stats.DrawsFired) * percentageMultiplier
	}
	if stats.Duration > 0 {
		drawsPerSecond = float64(stats.DrawsFired) / stats.Duration.Seconds()
	}
	logger.Get().Named("loadtest").Info(ctx, "final statistics",
		logger.Int("fired", stats.DrawsFired),
		logger.Int("allowed", stats.DrawsAllowed),
		logger.Int("limited", stats.DrawsLimited),
		logger.Int("failed", stats.DrawsFailed),
		logger.Int("profiles", stats.ProfilesChecked),
		logger.Int("leaderboard", stats.LeaderboardEntries),
		logger.Int("violations", len(stats.Violations)),
		logger.Float64("allowed_pct", allowedRate),
		logger.Float64("draws_per_sec", drawsPerSecond),
		logger.Duration("took", stats.Duration))
}
