package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// maxBodyBytes caps a list response.
const maxBodyBytes = 32 << 20

// APISource reads a list from a JSON HTTP endpoint.
type APISource struct {
	listID   string
	endpoint string
	mapper   mapper
	client   *http.Client
	pacer    *rate.Limiter
	timeout  time.Duration
	log      logger.Logger
}

// FetchOrderedItems implements Source.
func (s *APISource) FetchOrderedItems(ctx context.Context) ([]model.RankedItem, error) {
	items, err := s.fetch(ctx)
	if err != nil {
		s.log.Error(ctx, "list fetch failed", logger.String("endpoint", s.endpoint), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.listID, err)
	}
	return items, nil
}

func (s *APISource) fetch(ctx context.Context) ([]model.RankedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	items, err := s.mapper(body)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank < items[j].Rank })
	return items, nil
}
