package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

type drawRequest struct {
	// For draws on behalf of another user.
	For string `json:"for"`
	// List and GuildID are only read by POST /v1/draw.
	List    string `json:"list"`
	GuildID string `json:"guild_id"`
}

func (s *Server) handleLists(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Lists())
}

// handleDraw handles POST /v1/lists/{list}/draw.
func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	const op = "api.draw"
	s.draw(w, r, op, chi.URLParam(r, "list"))
}

// handleDrawResolved handles POST /v1/draw, picking the list from the body
// or the caller's saved preferences.
func (s *Server) handleDrawResolved(w http.ResponseWriter, r *http.Request) {
	const op = "api.draw_resolved"
	user := actor(r)
	if user == "" {
		s.writeError(w, r, NewKind(op, ErrMissingUser))
		return
	}
	var req drawRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	listID, err := s.deps.ResolveList(r.Context(), req.List, user, req.GuildID)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	s.drawWith(w, r, op, listID, req)
}

func (s *Server) draw(w http.ResponseWriter, r *http.Request, op, listID string) {
	var req drawRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	s.drawWith(w, r, op, listID, req)
}

func (s *Server) drawWith(w http.ResponseWriter, r *http.Request, op, listID string, req drawRequest) {
	user := actor(r)
	if user == "" {
		s.writeError(w, r, NewKind(op, ErrMissingUser))
		return
	}
	beneficiary := strings.TrimSpace(req.For)
	if beneficiary == "" {
		beneficiary = user
	}
	res, err := s.deps.Draw(r.Context(), user, beneficiary, listID)
	if err != nil {
		s.writeError(w, r, Wrap(op, err),
			logger.String("list_id", listID),
			logger.String("user_id", beneficiary))
		return
	}
	writeJSON(w, http.StatusOK, newDrawResponse(res))
}

func newDrawResponse(res model.DrawResult) types.DrawResponse { //nolint:gocritic // hugeParam: value conversion
	return types.DrawResponse{
		UserID:        res.UserID,
		ListID:        res.ListID,
		Item:          newItem(res.Item),
		PointsAwarded: res.PointsAwarded,
		TotalPoints:   res.NewTotal,
		MeanPoints:    res.MeanPoints,
		DrawCount:     res.DrawCount,
		ItemCount:     res.ItemCount,
	}
}

func newItem(it model.CachedItem) types.Item {
	return types.Item{Rank: it.Rank, Name: it.Name, Filename: it.Filename, Points: it.Points}
}

// handleItems handles GET /v1/lists/{list}/items?limit=N&q=term.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	const op = "api.items"
	listID := chi.URLParam(r, "list")
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	var items []model.CachedItem
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		items, err = s.deps.SearchItems(r.Context(), listID, q, min(limit, s.maxLimit))
	} else {
		items, err = s.deps.Items(r.Context(), listID, limit)
	}
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("list_id", listID))
		return
	}
	out := make([]types.Item, 0, len(items))
	for _, it := range items {
		out = append(out, newItem(it))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRefreshAll handles POST /v1/lists/refresh.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_all"
	rep, err := s.deps.RefreshAll(r.Context())
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newRefreshReport(rep.Lists...))
}

// handleRefreshList handles POST /v1/lists/{list}/refresh.
func (s *Server) handleRefreshList(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_list"
	listID := chi.URLParam(r, "list")
	res, err := s.deps.RefreshList(r.Context(), listID)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("list_id", listID))
		return
	}
	writeJSON(w, http.StatusOK, newRefreshReport(res))
}

func newRefreshReport(results ...ingest.ListResult) types.RefreshReport {
	rep := types.RefreshReport{Lists: make([]types.ListRefresh, 0, len(results))}
	for _, res := range results {
		lr := types.ListRefresh{ListID: res.ListID, Items: res.Items, Kept: res.Kept}
		if res.Err != nil {
			lr.Error = ingest.FailureReason(res.Err)
		}
		rep.Lists = append(rep.Lists, lr)
	}
	return rep
}

