package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

const defaultBoardSize = 10

// handleLeaderboard handles GET /v1/lists/{list}/leaderboard?limit=N&offset=M.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard"
	listID := chi.URLParam(r, "list")
	limit, err := intParam(r, "limit", defaultBoardSize)
	if err != nil || limit < 1 {
		s.writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}
	if limit > s.maxLimit {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "limit_exceeded", Message: "limit too large"})
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	entries, err := s.deps.Leaderboard(r.Context(), listID, limit, offset)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("list_id", listID))
		return
	}
	if entries == nil {
		entries = []types.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleProfile handles GET /v1/lists/{list}/profile/{user}.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.profile"
	listID, user := chi.URLParam(r, "list"), chi.URLParam(r, "user")
	p, err := s.deps.Profile(r.Context(), user, listID)
	if err != nil {
		s.writeError(w, r, Wrap(op, err),
			logger.String("list_id", listID),
			logger.String("user_id", user))
		return
	}
	items := make([]types.OwnedItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, types.OwnedItem{Rank: it.Rank, Name: it.Name, Filename: it.Filename, Count: it.Count})
	}
	writeJSON(w, http.StatusOK, types.Profile{
		UserID:      p.Entry.UserID,
		ListID:      p.Entry.ListID,
		Rank:        p.Rank,
		TotalPoints: p.Entry.TotalPoints,
		MeanPoints:  p.Entry.MeanPoints,
		DrawCount:   p.Entry.DrawCount,
		Items:       items,
	})
}
