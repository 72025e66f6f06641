// Package api exposes the game over HTTP: draws, standings, trades,
// cooldowns, settings and the live trade event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/fishy/internal/adapters/http/swagger"
	service "github.com/okian/fishy/internal/app"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

// HeaderUserID carries the acting user on every command.
const HeaderUserID = "X-User-ID"

const defaultMaxLimit = 100

// Dependencies is what the handlers need from the application layer.
// *service.Service satisfies it.
type Dependencies interface {
	Lists() []types.ListInfo
	Draw(ctx context.Context, actor, userID, listID string) (model.DrawResult, error)
	Command(ctx context.Context, userID, name string) error
	ResolveList(ctx context.Context, explicit, userID, guildID string) (string, error)
	Items(ctx context.Context, listID string, limit int) ([]model.CachedItem, error)
	SearchItems(ctx context.Context, listID, query string, limit int) ([]model.CachedItem, error)
	RefreshAll(ctx context.Context) (ingest.Report, error)
	RefreshList(ctx context.Context, listID string) (ingest.ListResult, error)
	Leaderboard(ctx context.Context, listID string, limit, offset int) ([]types.LeaderboardEntry, error)
	Profile(ctx context.Context, userID, listID string) (model.Profile, error)

	RequestTrade(ctx context.Context, r trade.Request) (model.TradeSession, error)
	RespondTrade(ctx context.Context, id, actor string, accept bool) (model.TradeSession, error)
	Trade(ctx context.Context, id string) (model.TradeSession, error)
	Trades(ctx context.Context, userID string, limit int) ([]model.TradeSession, error)
	Subscribe(userID string) (<-chan model.TradeEvent, func())

	CheckCooldown(ctx context.Context, userID, action string) (types.Cooldown, error)
	CommitCooldown(ctx context.Context, userID, action string) error
	ClearCooldown(ctx context.Context, userID, action string) error

	SetUserDefaultList(ctx context.Context, userID, listID string) error
	SetGuildDefaultList(ctx context.Context, guildID, listID string) error
	GuildJoined(ctx context.Context, g model.Guild) error
	GuildLeft(ctx context.Context, guildID string) error

	Health(ctx context.Context) error
	GetStats(ctx context.Context) (service.Stats, error)
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the game API.
type Server struct {
	deps     Dependencies
	maxLimit int
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		maxLimit: defaultMaxLimit,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.handleStats, "stats"))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/lists", MetricsMiddleware(s.handleLists, "lists"))
		r.Post("/lists/refresh", MetricsMiddleware(s.handleRefreshAll, "refresh_all"))

		r.Post("/draw", MetricsMiddleware(s.command("draw", s.handleDrawResolved), "draw"))
		r.Post("/lists/{list}/draw", MetricsMiddleware(s.command("draw", s.handleDraw), "draw"))
		r.Get("/lists/{list}/items", MetricsMiddleware(s.command("items", s.handleItems), "items"))
		r.Get("/lists/{list}/leaderboard", MetricsMiddleware(s.command("leaderboard", s.handleLeaderboard), "leaderboard"))
		r.Get("/lists/{list}/profile/{user}", MetricsMiddleware(s.command("profile", s.handleProfile), "profile"))
		r.Post("/trades", MetricsMiddleware(s.command("trade", s.handleRequestTrade), "trade"))
		r.Post("/trades/{id}/accept", MetricsMiddleware(s.command("trade", s.handleAcceptTrade), "trade_accept"))
		r.Post("/trades/{id}/reject", MetricsMiddleware(s.command("trade", s.handleRejectTrade), "trade_reject"))
		r.Post("/lists/{list}/refresh", MetricsMiddleware(s.handleRefreshList, "refresh_list"))
		r.Get("/trades", MetricsMiddleware(s.handleListTrades, "trades"))
		r.Get("/trades/events", s.handleTradeEvents)
		r.Get("/trades/{id}", MetricsMiddleware(s.handleGetTrade, "trade_get"))

		r.Get("/cooldowns/{user}/{action}", MetricsMiddleware(s.handleCheckCooldown, "cooldown"))
		r.Post("/cooldowns/{user}/{action}", MetricsMiddleware(s.handleCommitCooldown, "cooldown"))
		r.Delete("/cooldowns/{user}/{action}", MetricsMiddleware(s.handleClearCooldown, "cooldown"))

		r.Put("/settings/users/{user}", MetricsMiddleware(s.handleUserSettings, "settings"))
		r.Put("/settings/guilds/{guild}", MetricsMiddleware(s.handleGuildSettings, "settings"))
		r.Post("/guilds/{guild}/join", MetricsMiddleware(s.handleGuildJoin, "guild"))
		r.Post("/guilds/{guild}/leave", MetricsMiddleware(s.handleGuildLeave, "guild"))
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err, logs server side failures and writes a terse body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fields ...logger.Field) {
	f := classify(err)
	if f.status >= http.StatusInternalServerError {
		fields = append(fields,
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		s.logger.Error(r.Context(), "request failed", fields...)
	}
	if f.status == http.StatusTooManyRequests {
		retryAfter(w, err)
	}
	writeJSON(w, f.status, errorResponse{Code: f.code, Message: f.message})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// intParam reads a non-negative query integer, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func actor(r *http.Request) string {
	return r.Header.Get(HeaderUserID)
}
