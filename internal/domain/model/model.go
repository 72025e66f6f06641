// Package model contains domain models passed between layers.
package model

import "time"

// RankedItem is one entry as produced by a list source, before scoring.
type RankedItem struct {
	Name     string
	Filename string // stable identifier of the item within its list
	Rank     int    // 1-based position reported by the source
}

// CachedItem is a scored item in the per-list cache.
type CachedItem struct {
	ListID   string
	Name     string
	Filename string
	Rank     int
	Points   float64
}

// LedgerEntry is a user's cumulative record on one list.
type LedgerEntry struct {
	UserID      string
	ListID      string
	TotalPoints float64
	MeanPoints  float64
	DrawCount   int
	Items       map[string]int // filename -> times drawn or received
}

// ItemTotal sums the frequency map. It equals DrawCount for consistent entries.
func (e LedgerEntry) ItemTotal() int {
	n := 0
	for _, c := range e.Items {
		n += c
	}
	return n
}

// DrawResult is the outcome of a successful draw.
type DrawResult struct {
	UserID        string
	ListID        string
	Item          CachedItem
	PointsAwarded float64
	NewTotal      float64
	MeanPoints    float64
	DrawCount     int
	ItemCount     int // how many of this item the user now holds
}

// OwnedItem joins a ledger frequency with the current cache row.
type OwnedItem struct {
	Filename string
	Name     string
	Rank     int // 0 when the item fell off the cached list
	Count    int
}

// Profile is a user's standing on a list.
type Profile struct {
	Entry LedgerEntry
	Rank  int // 1 + number of users with strictly more points
	Items []OwnedItem
}

// Guild is a registered deployment (chat server) of the game.
type Guild struct {
	ID          string
	Name        string
	MemberCount int
	Enabled     bool
	UpdatedAt   time.Time
}
