// Package repository persists the game state: the per-list item cache, user
// ledgers, trade sessions and settings.
//
// All ledger mutation happens inside store transactions so concurrent draws
// and trades on the same rows are linearised by the database, not by process
// locks.
package repository

import (
	"context"
	"time"

	"github.com/okian/fishy/internal/domain/model"
)

// CacheStore holds the scored items of every list.
type CacheStore interface {
	// ReplaceItems swaps a list's whole item set in one transaction.
	ReplaceItems(ctx context.Context, listID string, items []model.CachedItem) error
	// ItemsUpTo returns the first limit items by rank; limit <= 0 returns all.
	ItemsUpTo(ctx context.Context, listID string, limit int) ([]model.CachedItem, error)
	// ItemByFilename returns the best ranked item with filename. ErrNotFound if absent.
	ItemByFilename(ctx context.Context, listID, filename string) (model.CachedItem, error)
	// SearchItems matches names case-insensitively, ordered by rank.
	SearchItems(ctx context.Context, listID, query string, limit int) ([]model.CachedItem, error)
	// ItemCounts returns the cached item count per list.
	ItemCounts(ctx context.Context) (map[string]int, error)
}

// LedgerStore records draws and answers ledger queries.
type LedgerStore interface {
	// RecordDraw atomically credits item to the user's entry and frequency map.
	RecordDraw(ctx context.Context, userID string, item model.CachedItem) (model.DrawResult, error)
	// Entry returns the user's entry with its frequency map. ErrNotFound if the user never drew.
	Entry(ctx context.Context, userID, listID string) (model.LedgerEntry, error)
	// ItemCount returns how many of filename the user holds.
	ItemCount(ctx context.Context, userID, listID, filename string) (int, error)
	// Leaderboard orders entries by total points desc, then user id.
	Leaderboard(ctx context.Context, listID string, limit, offset int) ([]model.LedgerEntry, error)
	// RankOf returns 1 + the number of users with strictly more than total points.
	RankOf(ctx context.Context, listID string, total float64) (int, error)
	// OwnedItems joins the user's frequencies with the cache, ordered by rank.
	OwnedItems(ctx context.Context, userID, listID string) ([]model.OwnedItem, error)
}

// SwapRequest moves Give from Requester to Target and Want from Target to Requester.
//
// When SessionID is set the session moves from processing to accepted in the
// same transaction as the item changes, stamped with At.
type SwapRequest struct {
	ListID    string
	Requester string
	Target    string
	Give      string
	Want      string
	SessionID string
	At        time.Time
}

// Swapper executes the atomic two-party exchange.
type Swapper interface {
	// Swap re-checks ownership under row locks and applies all four frequency
	// changes or none. ErrNotOwned when either side no longer holds its item,
	// ErrConflict when SessionID is set and no longer processing.
	Swap(ctx context.Context, req SwapRequest) error
}

// SessionStore persists trade sessions. Transition is the only way to change state.
type SessionStore interface {
	Create(ctx context.Context, s model.TradeSession) error
	Get(ctx context.Context, id string) (model.TradeSession, error)
	// Transition moves id from one state to another if and only if it is
	// currently in from. ErrConflict when another resolver got there first.
	Transition(ctx context.Context, id string, from, to model.TradeState, reason string, now time.Time) (model.TradeSession, error)
	// Overdue returns pending sessions whose deadline has passed.
	Overdue(ctx context.Context, now time.Time, limit int) ([]model.TradeSession, error)
	// Stalled returns processing sessions last updated at or before cutoff.
	Stalled(ctx context.Context, cutoff time.Time, limit int) ([]model.TradeSession, error)
	// DeleteResolvedBefore removes terminal sessions last updated before cutoff.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
	// ListByUser returns sessions where user is either party, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.TradeSession, error)
}

// SettingsStore keeps per-user and per-guild preferences and the guild registry.
type SettingsStore interface {
	SetUserDefaultList(ctx context.Context, userID, listID string) error
	// UserDefaultList returns "" when unset.
	UserDefaultList(ctx context.Context, userID string) (string, error)
	SetGuildDefaultList(ctx context.Context, guildID, listID string) error
	// GuildDefaultList returns "" when unset.
	GuildDefaultList(ctx context.Context, guildID string) (string, error)
	UpsertGuild(ctx context.Context, g model.Guild) error
	SetGuildEnabled(ctx context.Context, guildID string, enabled bool) error
	Guild(ctx context.Context, guildID string) (model.Guild, error)
	CountGuilds(ctx context.Context) (enabled int, err error)
}
