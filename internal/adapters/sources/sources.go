// Package sources pulls ordered ranked items from the places lists are published.
//
// Two variants exist behind one interface: APISource reads a JSON endpoint and
// RepoSource reads a mirrored git repository. Both contain their failures: a
// broken source yields an empty sequence and a wrapped sentinel error, never a
// panic, so ingestion can keep the previous cache.
package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// Source yields a list's items ordered by rank.
type Source interface {
	FetchOrderedItems(ctx context.Context) ([]model.RankedItem, error)
}

// Default adapter configuration constants.
const (
	defaultTimeout = 30 * time.Second
	defaultRPS     = 2
	defaultBurst   = 1
	defaultGitDir  = ".git-lists"
	userAgent      = "fishy-ingest/1.0"
)

type settings struct {
	client   *http.Client
	pacer    *rate.Limiter
	timeout  time.Duration
	gitDir   string
	username string
	token    string
	git      GitRunner
	log      logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		timeout: defaultTimeout,
		gitDir:  defaultGitDir,
		git:     ExecGit{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	if s.pacer == nil {
		s.pacer = rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst)
	}
	if s.log == nil {
		s.log = logger.Get().Named("sources")
	}
	return s
}

// New builds the Source for a catalogue list.
func New(list catalog.List, opts ...Option) (Source, error) {
	s := newSettings(opts)
	switch list.Source.Kind {
	case catalog.SourceAPI:
		m, err := mapperFor(list.Source.Mapper)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", list.ID, err)
		}
		return &APISource{
			listID:   list.ID,
			endpoint: list.Source.Endpoint,
			mapper:   m,
			client:   s.client,
			pacer:    s.pacer,
			timeout:  s.timeout,
			log:      s.log.With(logger.String("list_id", list.ID)),
		}, nil
	case catalog.SourceRepo:
		return NewRepoSource(list.ID, list.Source.Repo, opts...), nil
	default:
		return nil, fmt.Errorf("list %s: unknown source kind %q", list.ID, list.Source.Kind)
	}
}
