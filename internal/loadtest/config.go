// Package loadtest drives a running fishy server with concurrent draws and
// checks the ledger it leaves behind.
package loadtest

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the service
	List       string        // List to draw from
	Users      int           // Number of distinct users drawing
	Repeat     int           // Extra draws per user expected to hit the cooldown
	TopN       int           // Leaderboard entries to fetch
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	UserPrefix string        // Prefix for generated user ids
	OutputFile string        // Optional JSON report path
	Verbose    bool
}

// Draw is one draw to fire.
type Draw struct {
	UserID string `json:"user_id"`
	Repeat bool   `json:"repeat"`
}

// Outcome is what the server answered for one draw.
type Outcome struct {
	Draw
	Status int     `json:"status"`
	Points float64 `json:"points,omitempty"`
	Item   string  `json:"item,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	DrawsFired         int           `json:"draws_fired"`
	DrawsAllowed       int           `json:"draws_allowed"`
	DrawsLimited       int           `json:"draws_limited"`
	DrawsFailed        int           `json:"draws_failed"`
	UnexpectedAllowed  int           `json:"unexpected_allowed"`
	LeaderboardEntries int           `json:"leaderboard_entries"`
	ProfilesChecked    int           `json:"profiles_checked"`
	Violations         []string      `json:"violations,omitempty"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	Duration           time.Duration `json:"duration"`
}
