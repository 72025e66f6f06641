package loadtest

import (
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/okian/fishy/internal/domain/types"
)

// tally is what the client saw per user.
type tally struct {
	allowed int
	points  float64
}

func tallyOutcomes(outcomes []Outcome) map[string]tally {
	out := make(map[string]tally)
	for _, o := range outcomes {
		t := out[o.UserID]
		if o.Status == http.StatusOK {
			t.allowed++
			t.points += o.Points
		}
		out[o.UserID] = t
	}
	return out
}

// verifyProfiles checks every profile against the draws the client saw
// succeed. It returns one message per violation.
func verifyProfiles(seen map[string]tally, profiles map[string]types.Profile) []string {
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)

	var violations []string
	for _, u := range users {
		t := seen[u]
		p, ok := profiles[u]
		if !ok {
			if t.allowed > 0 {
				violations = append(violations, fmt.Sprintf("%s: %d draws succeeded but no profile exists", u, t.allowed))
			}
			continue
		}
		if p.DrawCount != t.allowed {
			violations = append(violations, fmt.Sprintf("%s: draw_count %d, client saw %d", u, p.DrawCount, t.allowed))
		}
		owned := 0
		for _, it := range p.Items {
			owned += it.Count
		}
		if owned != p.DrawCount {
			violations = append(violations, fmt.Sprintf("%s: owns %d items, draw_count %d", u, owned, p.DrawCount))
		}
		if !near(p.TotalPoints, t.points) {
			violations = append(violations, fmt.Sprintf("%s: total %.6f, client saw %.6f", u, p.TotalPoints, t.points))
		}
		if p.DrawCount > 0 && !near(p.MeanPoints, p.TotalPoints/float64(p.DrawCount)) {
			violations = append(violations, fmt.Sprintf("%s: mean %.6f != total/count", u, p.MeanPoints))
		}
	}
	return violations
}

// verifyLeaderboard checks ordering, contiguous ranks and per-entry means.
func verifyLeaderboard(entries []types.LeaderboardEntry) []string {
	var violations []string
	for i, e := range entries {
		if e.Rank != i+1 {
			violations = append(violations, fmt.Sprintf("leaderboard entry %d has rank %d", i, e.Rank))
		}
		if i > 0 && e.TotalPoints > entries[i-1].TotalPoints+pointsTolerance {
			violations = append(violations, fmt.Sprintf("leaderboard not sorted at rank %d", e.Rank))
		}
		if e.DrawCount > 0 && !near(e.MeanPoints, e.TotalPoints/float64(e.DrawCount)) {
			violations = append(violations, fmt.Sprintf("%s: leaderboard mean %.6f != total/count", e.UserID, e.MeanPoints))
		}
	}
	return violations
}

// verifyRepeats flags repeat draws that got through the cooldown.
func verifyRepeats(outcomes []Outcome, stats *Stats) []string {
	var violations []string
	for _, o := range outcomes {
		if o.Repeat && o.Status == http.StatusOK {
			stats.UnexpectedAllowed++
			violations = append(violations, fmt.Sprintf("%s: repeat draw was allowed", o.UserID))
		}
	}
	return violations
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= pointsTolerance*math.Max(1, math.Abs(b))
}
