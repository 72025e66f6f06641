package sources

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/fishy/pkg/logger"
)

// Option configures the adapters built by New.
type Option func(*settings)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.client = c
		}
	}
}

// WithPacer shares one outbound limiter between API sources.
func WithPacer(l *rate.Limiter) Option {
	return func(s *settings) { s.pacer = l }
}

// WithRPS creates a fresh pacer allowing rps requests per second.
func WithRPS(rps float64) Option {
	return func(s *settings) {
		if rps > 0 {
			s.pacer = rate.NewLimiter(rate.Limit(rps), defaultBurst)
		}
	}
}

// WithTimeout bounds a single fetch including git commands.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithGitDir sets where repository mirrors are kept.
func WithGitDir(dir string) Option {
	return func(s *settings) {
		if dir != "" {
			s.gitDir = dir
		}
	}
}

// WithCredentials injects basic credentials into https repository URLs.
func WithCredentials(username, token string) Option {
	return func(s *settings) {
		s.username, s.token = username, token
	}
}

// WithGitRunner replaces the git command runner.
func WithGitRunner(r GitRunner) Option {
	return func(s *settings) {
		if r != nil {
			s.git = r
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
