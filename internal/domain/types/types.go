// Package types contains response types shared by the HTTP layer and the loadtest client.
package types

import (
	"time"

	"github.com/okian/fishy/internal/domain/model"
)

// LeaderboardEntry is one row of a list leaderboard.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	TotalPoints float64 `json:"total_points"`
	MeanPoints  float64 `json:"mean_points"`
	DrawCount   int     `json:"draw_count"`
}

// ListInfo describes a list in the catalogue.
type ListInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Cutoff   int    `json:"cutoff,omitempty"`
	Source   string `json:"source"`
}

// Item is a cached list item.
type Item struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	Filename string  `json:"filename"`
	Points   float64 `json:"points"`
}

// DrawResponse is returned by the draw endpoint.
type DrawResponse struct {
	UserID        string  `json:"user_id"`
	ListID        string  `json:"list_id"`
	Item          Item    `json:"item"`
	PointsAwarded float64 `json:"points_awarded"`
	TotalPoints   float64 `json:"total_points"`
	MeanPoints    float64 `json:"mean_points"`
	DrawCount     int     `json:"draw_count"`
	ItemCount     int     `json:"item_count"`
}

// OwnedItem is an item in a profile.
type OwnedItem struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Count    int    `json:"count"`
}

// Profile is a user's standing on a list.
type Profile struct {
	UserID      string      `json:"user_id"`
	ListID      string      `json:"list_id"`
	Rank        int         `json:"rank"`
	TotalPoints float64     `json:"total_points"`
	MeanPoints  float64     `json:"mean_points"`
	DrawCount   int         `json:"draw_count"`
	Items       []OwnedItem `json:"items"`
}

// Trade is a trade session as seen by clients.
type Trade struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Requester string    `json:"requester"`
	Target    string    `json:"target"`
	Give      string    `json:"give"`
	Want      string    `json:"want"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

// NewTrade converts a session for the wire.
func NewTrade(s model.TradeSession) Trade { //nolint:gocritic // hugeParam: value conversion
	return Trade{
		ID:        s.ID,
		ListID:    s.ListID,
		Requester: s.Requester,
		Target:    s.Target,
		Give:      s.Give,
		Want:      s.Want,
		State:     string(s.State),
		Reason:    s.Reason,
		CreatedAt: s.CreatedAt,
		Deadline:  s.Deadline,
	}
}

// TradeEvent is pushed to webhooks and websocket subscribers.
type TradeEvent struct {
	Type       string    `json:"type"` // trade.<state>
	Trade      Trade     `json:"trade"`
	Recipients []string  `json:"recipients"`
	At         time.Time `json:"at"`
}

// NewTradeEvent converts an event for the wire.
func NewTradeEvent(e model.TradeEvent) TradeEvent { //nolint:gocritic // hugeParam: value conversion
	return TradeEvent{
		Type:       "trade." + string(e.Session.State),
		Trade:      NewTrade(e.Session),
		Recipients: e.Recipients(),
		At:         e.At,
	}
}

// Cooldown reports a limiter window.
type Cooldown struct {
	Key       string `json:"key"`
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	ResetInMS int64  `json:"reset_in_ms"`
}

// RefreshReport summarizes an ingestion run.
type RefreshReport struct {
	Lists []ListRefresh `json:"lists"`
}

// ListRefresh is the per-list part of a RefreshReport.
type ListRefresh struct {
	ListID string `json:"list_id"`
	Items  int    `json:"items"`
	Kept   bool   `json:"kept_previous"`
	Error  string `json:"error,omitempty"`
}
