// Package ledger awards drawn items and answers standings queries.
//
// The ledger holds no locks of its own. Every mutation is a single store
// transaction whose arithmetic runs in SQL, so concurrent draws for the same
// user and list serialize in the database and never lose an update.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

const defaultMaxLeaderboard = 100

// Ledger records draws against the cached lists.
type Ledger struct {
	catalog  *catalog.Catalog
	cache    repository.CacheStore
	store    repository.LedgerStore
	intn     func(n int) int
	maxBoard int
	log      logger.Logger
}

// New returns a Ledger.
func New(cat *catalog.Catalog, cache repository.CacheStore, store repository.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		catalog:  cat,
		cache:    cache,
		store:    store,
		intn:     rand.IntN,
		maxBoard: defaultMaxLeaderboard,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// Draw picks a uniformly random eligible item and credits it to userID.
func (l *Ledger) Draw(ctx context.Context, userID, listID string) (model.DrawResult, error) {
	start := time.Now()
	res, err := l.draw(ctx, userID, listID)
	metrics.RecordDrawLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordDraw(listID, metrics.OutcomeError)
		return model.DrawResult{}, err
	}
	metrics.RecordDraw(listID, metrics.OutcomeOK)
	return res, nil
}

// DrawFor draws on behalf of beneficiary. The actor is only recorded in logs.
func (l *Ledger) DrawFor(ctx context.Context, actor, beneficiary, listID string) (model.DrawResult, error) {
	res, err := l.Draw(ctx, beneficiary, listID)
	if err == nil && actor != beneficiary {
		l.log.Info(ctx, "draw on behalf",
			logger.String("actor", actor),
			logger.String("user_id", beneficiary),
			logger.String("list_id", listID),
			logger.String("item", res.Item.Filename))
	}
	return res, err
}

func (l *Ledger) draw(ctx context.Context, userID, listID string) (model.DrawResult, error) {
	list, err := l.catalog.Get(listID)
	if err != nil {
		return model.DrawResult{}, err
	}
	// one read bounded by the cutoff; a concurrent cache replace is either
	// fully visible or not at all
	items, err := l.cache.ItemsUpTo(ctx, listID, list.Cutoff)
	if err != nil {
		return model.DrawResult{}, fmt.Errorf("draw: %w", err)
	}
	if len(items) == 0 {
		return model.DrawResult{}, fmt.Errorf("%w: %s", ErrNoItemsAvailable, listID)
	}

	item := items[l.intn(len(items))]
	res, err := l.store.RecordDraw(ctx, userID, item)
	if err != nil {
		l.log.Error(ctx, "record draw failed",
			logger.String("user_id", userID),
			logger.String("list_id", listID),
			logger.Error(err))
		return model.DrawResult{}, fmt.Errorf("draw: %w", err)
	}
	return res, nil
}

// Leaderboard returns the top users of a list. limit is clamped to the configured maximum.
func (l *Ledger) Leaderboard(ctx context.Context, listID string, limit int) ([]types.LeaderboardEntry, error) {
	return l.LeaderboardPage(ctx, listID, limit, 0)
}

// LeaderboardPage is Leaderboard starting after offset rows.
func (l *Ledger) LeaderboardPage(ctx context.Context, listID string, limit, offset int) ([]types.LeaderboardEntry, error) {
	if !l.catalog.Has(listID) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownList, listID)
	}
	if limit <= 0 || limit > l.maxBoard {
		limit = l.maxBoard
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := l.store.Leaderboard(ctx, listID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]types.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = types.LeaderboardEntry{
			Rank:        offset + i + 1,
			UserID:      e.UserID,
			TotalPoints: e.TotalPoints,
			MeanPoints:  e.MeanPoints,
			DrawCount:   e.DrawCount,
		}
	}
	return out, nil
}

// Profile returns the user's entry, global rank and owned items.
func (l *Ledger) Profile(ctx context.Context, userID, listID string) (model.Profile, error) {
	if !l.catalog.Has(listID) {
		return model.Profile{}, fmt.Errorf("%w: %q", catalog.ErrUnknownList, listID)
	}
	entry, err := l.store.Entry(ctx, userID, listID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, fmt.Errorf("%w: %s on %s", ErrNoEntry, userID, listID)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile: %w", err)
	}
	rank, err := l.store.RankOf(ctx, listID, entry.TotalPoints)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile: %w", err)
	}
	items, err := l.store.OwnedItems(ctx, userID, listID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile: %w", err)
	}
	return model.Profile{Entry: entry, Rank: rank, Items: items}, nil
}
