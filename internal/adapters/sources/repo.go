package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// Repository layout.
const (
	manifestFile = "_list.json"
	dataDir      = "data"
)

// RepoSource reads a list from a local mirror of a git repository.
type RepoSource struct {
	listID   string
	repoURL  string
	mirror   string
	username string
	token    string
	timeout  time.Duration
	git      GitRunner
	log      logger.Logger

	mu sync.Mutex // one sync per mirror at a time
}

// NewRepoSource creates a source mirroring repoURL under the configured git dir.
func NewRepoSource(listID, repoURL string, opts ...Option) *RepoSource {
	s := newSettings(opts)
	return &RepoSource{
		listID:   listID,
		repoURL:  repoURL,
		mirror:   filepath.Join(s.gitDir, listID),
		username: s.username,
		token:    s.token,
		timeout:  s.timeout,
		git:      s.git,
		log:      s.log.With(logger.String("list_id", listID)),
	}
}

// FetchOrderedItems implements Source.
func (s *RepoSource) FetchOrderedItems(ctx context.Context) ([]model.RankedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// never serve a stale mirror; the pipeline keeps the previous cache instead
	if err := s.sync(ctx); err != nil {
		s.log.Error(ctx, "repository sync failed", logger.String("repo", s.redactedURL()), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.listID, err)
	}
	items, err := s.read(ctx)
	if err != nil {
		s.log.Error(ctx, "repository read failed", logger.String("mirror", s.mirror), logger.Error(err))
		return nil, err
	}
	return items, nil
}

func (s *RepoSource) sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote, err := s.authURL()
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(s.mirror, ".git")); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(s.mirror), 0o755); err != nil {
			return fmt.Errorf("create git dir: %w", err)
		}
		// a half-written mirror from an interrupted clone blocks the next one
		_ = os.RemoveAll(s.mirror)
		s.log.Info(ctx, "cloning repository", logger.String("repo", s.redactedURL()))
		return s.git.Run(ctx, "", "clone", remote, s.mirror)
	} else if err != nil {
		return fmt.Errorf("stat mirror: %w", err)
	}

	steps := [][]string{
		{"fetch", "--prune", remote, "HEAD"},
		{"reset", "--hard", "FETCH_HEAD"},
		{"clean", "-fd"},
	}
	for _, args := range steps {
		if err := s.git.Run(ctx, s.mirror, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *RepoSource) read(ctx context.Context) ([]model.RankedItem, error) {
	sc, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestInvalid, err)
	}

	raw, err := os.ReadFile(filepath.Join(s.mirror, dataDir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestInvalid, s.listID, err)
	}
	var ids []string
	if err := validateJSON(sc.manifest, raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestInvalid, s.listID, err)
	}

	out := make([]model.RankedItem, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, "_") {
			continue
		}
		if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
			s.log.Warn(ctx, "skipping item with unsafe identifier", logger.String("item", id))
			continue
		}
		doc, err := os.ReadFile(filepath.Join(s.mirror, dataDir, id+".json"))
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable item", logger.String("item", id), logger.Error(err))
			continue
		}
		var item struct {
			Name string `json:"name"`
		}
		if err := validateJSON(sc.item, doc, &item); err != nil {
			s.log.Warn(ctx, "skipping malformed item", logger.String("item", id), logger.Error(err))
			continue
		}
		out = append(out, model.RankedItem{Name: item.Name, Filename: id, Rank: len(out) + 1})
	}
	return out, nil
}

func (s *RepoSource) authURL() (string, error) {
	if s.username == "" && s.token == "" {
		return s.repoURL, nil
	}
	u, err := url.Parse(s.repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repo url: %w", err)
	}
	if u.Scheme != "https" {
		return s.repoURL, nil
	}
	user := s.username
	if user == "" {
		user = "x-access-token"
	}
	u.User = url.UserPassword(user, s.token)
	return u.String(), nil
}

func (s *RepoSource) redactedURL() string {
	u, err := url.Parse(s.repoURL)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
