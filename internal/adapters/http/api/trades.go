package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

type tradeRequest struct {
	ListID string `json:"list_id"`
	Target string `json:"target"`
	Give   string `json:"give"`
	Want   string `json:"want"`
}

func (t tradeRequest) validate() error {
	switch {
	case strings.TrimSpace(t.ListID) == "":
		return errors.New("missing list_id")
	case strings.TrimSpace(t.Target) == "":
		return errors.New("missing target")
	case strings.TrimSpace(t.Give) == "":
		return errors.New("missing give")
	case strings.TrimSpace(t.Want) == "":
		return errors.New("missing want")
	}
	return nil
}

// handleRequestTrade handles POST /v1/trades.
func (s *Server) handleRequestTrade(w http.ResponseWriter, r *http.Request) {
	const op = "api.request_trade"
	user := actor(r)
	if user == "" {
		s.writeError(w, r, NewKind(op, ErrMissingUser))
		return
	}
	var req tradeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := s.deps.RequestTrade(r.Context(), trade.Request{
		ListID:    req.ListID,
		Requester: user,
		Target:    req.Target,
		Give:      req.Give,
		Want:      req.Want,
	})
	if err != nil {
		s.writeError(w, r, Wrap(op, err),
			logger.String("list_id", req.ListID),
			logger.String("user_id", user))
		return
	}
	writeJSON(w, http.StatusCreated, types.NewTrade(sess))
}

// handleAcceptTrade handles POST /v1/trades/{id}/accept.
func (s *Server) handleAcceptTrade(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "api.accept_trade", true)
}

// handleRejectTrade handles POST /v1/trades/{id}/reject.
func (s *Server) handleRejectTrade(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "api.reject_trade", false)
}

// respond resolves a trade. Losing a race to another resolver is not an
// error: the caller gets the session as the winner left it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, accept bool) {
	user := actor(r)
	if user == "" {
		s.writeError(w, r, NewKind(op, ErrMissingUser))
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.deps.RespondTrade(r.Context(), id, user, accept)
	if errors.Is(err, trade.ErrSessionTerminal) {
		sess, err = s.deps.Trade(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, Wrap(op, err),
			logger.String("trade_id", id),
			logger.String("user_id", user))
		return
	}
	writeJSON(w, http.StatusOK, types.NewTrade(sess))
}

// handleGetTrade handles GET /v1/trades/{id}.
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trade"
	id := chi.URLParam(r, "id")
	sess, err := s.deps.Trade(r.Context(), id)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("trade_id", id))
		return
	}
	writeJSON(w, http.StatusOK, types.NewTrade(sess))
}

// handleListTrades handles GET /v1/trades?user=U&limit=N.
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_trades"
	user := r.URL.Query().Get("user")
	if user == "" {
		user = actor(r)
	}
	if user == "" {
		s.writeError(w, r, NewKind(op, ErrMissingUser))
		return
	}
	limit, err := intParam(r, "limit", defaultBoardSize)
	if err != nil || limit < 1 || limit > s.maxLimit {
		s.writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}
	sessions, err := s.deps.Trades(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	out := make([]types.Trade, 0, len(sessions))
	for i := range sessions {
		out = append(out, types.NewTrade(sessions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
