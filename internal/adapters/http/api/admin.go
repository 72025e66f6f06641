package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
)

// handleCheckCooldown handles GET /v1/cooldowns/{user}/{action}.
func (s *Server) handleCheckCooldown(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_cooldown"
	user, action := chi.URLParam(r, "user"), chi.URLParam(r, "action")
	cd, err := s.deps.CheckCooldown(r.Context(), user, action)
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	writeJSON(w, http.StatusOK, cd)
}

// handleCommitCooldown handles POST /v1/cooldowns/{user}/{action}.
func (s *Server) handleCommitCooldown(w http.ResponseWriter, r *http.Request) {
	const op = "api.commit_cooldown"
	user, action := chi.URLParam(r, "user"), chi.URLParam(r, "action")
	if err := s.deps.CommitCooldown(r.Context(), user, action); err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearCooldown handles DELETE /v1/cooldowns/{user}/{action}.
func (s *Server) handleClearCooldown(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_cooldown"
	user, action := chi.URLParam(r, "user"), chi.URLParam(r, "action")
	if err := s.deps.ClearCooldown(r.Context(), user, action); err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsRequest struct {
	ListID string `json:"list_id"`
}

func (s *Server) readSettings(r *http.Request, op string) (string, error) {
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		return "", WrapKind(op, ErrBadRequest, err)
	}
	if strings.TrimSpace(req.ListID) == "" {
		return "", WrapKind(op, ErrBadRequest, errors.New("missing list_id"))
	}
	return req.ListID, nil
}

// handleUserSettings handles PUT /v1/settings/users/{user}.
func (s *Server) handleUserSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_settings"
	user := chi.URLParam(r, "user")
	listID, err := s.readSettings(r, op)
	if err == nil {
		err = s.deps.SetUserDefaultList(r.Context(), user, listID)
	}
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("user_id", user))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGuildSettings handles PUT /v1/settings/guilds/{guild}.
func (s *Server) handleGuildSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.guild_settings"
	guild := chi.URLParam(r, "guild")
	listID, err := s.readSettings(r, op)
	if err == nil {
		err = s.deps.SetGuildDefaultList(r.Context(), guild, listID)
	}
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("guild_id", guild))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type guildRequest struct {
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// handleGuildJoin handles POST /v1/guilds/{guild}/join.
func (s *Server) handleGuildJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.guild_join"
	guild := chi.URLParam(r, "guild")
	var req guildRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	if req.MemberCount < 0 {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("negative member_count")))
		return
	}
	err := s.deps.GuildJoined(r.Context(), model.Guild{ID: guild, Name: req.Name, MemberCount: req.MemberCount})
	if err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("guild_id", guild))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGuildLeave handles POST /v1/guilds/{guild}/leave.
func (s *Server) handleGuildLeave(w http.ResponseWriter, r *http.Request) {
	const op = "api.guild_leave"
	guild := chi.URLParam(r, "guild")
	if err := s.deps.GuildLeft(r.Context(), guild); err != nil {
		s.writeError(w, r, Wrap(op, err), logger.String("guild_id", guild))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
