// Package admin is C13: a minimal operator HTTP surface (/healthz,
// /admin/*) grounded on the teacher's internal/web/server.go chi wiring
// (chi.Mux, chi.NewRouter, middleware.Logger/Recoverer/RealIP, an
// r.Group(func(r chi.Router){...}) block for privileged routes). The
// teacher's admin surface rendered HTML dashboards with session-cookie
// auth; this one is a JSON control plane for an operator tool rather than
// a browser, so it authenticates with a static bearer token instead of
// auth.AdminMiddleware's Steam-session check, and returns JSON instead of
// executing templates.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/coordinator"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
)

// Server exposes the coordination core's operator surface over HTTP,
// mirroring the teacher's web.Server but scoped to health and admin
// concerns only (the player-facing routes all live on the websocket
// gateway, per spec §1's transport split).
type Server struct {
	router *chi.Mux
	coord  *coordinator.Coordinator
	kv     *kv.Store
	db     store.Store
	log    *logrus.Logger
}

// Config holds the admin surface's own tunables.
type Config struct {
	// Token is the bearer token required on every /admin/* request. An
	// empty token disables the admin group entirely (health stays open),
	// matching a fail-closed default for an accidentally-unset secret.
	Token string
}

// New constructs the admin HTTP handler and registers its routes.
func New(coord *coordinator.Coordinator, kvStore *kv.Store, db store.Store, cfg Config, log *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		coord:  coord,
		kv:     kvStore,
		db:     db,
		log:    log,
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg Config) {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(cfg.Token))

		r.Get("/admin/state", s.handleState)
		r.Post("/admin/match/{matchID}/cancel", s.handleCancelMatch)
		r.Post("/admin/queue/{region}/kick/{playerID}", s.handleKickFromQueue)
	})
}

// ServeHTTP implements http.Handler so a caller can mount *Server directly
// under net/http or chi.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireToken is the admin surface's stand-in for the teacher's
// auth.AdminMiddleware: no Steam session to check here, just a shared
// secret the operator tool is configured with.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthzResponse struct {
	Status string `json:"status"`
	Redis  bool   `json:"redis"`
	DB     bool   `json:"db"`
}

// handleHealthz checks the coordination core's two hard dependencies:
// Redis (session registry, outbox, ownership) and the match-history
// database. Either being unreachable sets the status to degraded and the
// response code to 503 Service Unavailable; the JSON body still reports
// each dependency separately.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthzResponse{Status: "ok"}
	if err := s.kv.Ping(ctx); err != nil {
		resp.Redis = false
		resp.Status = "degraded"
	} else {
		resp.Redis = true
	}
	if err := s.db.Ping(ctx); err != nil {
		resp.DB = false
		resp.Status = "degraded"
	} else {
		resp.DB = true
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleState returns the coordinator's read-only snapshot, the JSON
// equivalent of the teacher's handleAdminState dashboard panel.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.coord.Snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// handleCancelMatch force-cancels a match regardless of phase, optionally
// requeuing its non-declining players, matching the teacher's
// handleAdminCancelMatch semantics.
func (s *Server) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		http.Error(w, "match ID required", http.StatusBadRequest)
		return
	}
	returnToQueue := r.URL.Query().Get("return") != "false"

	if err := s.coord.AdminCancelMatch(r.Context(), matchID, returnToQueue); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleKickFromQueue removes a player from a region's queue, matching the
// teacher's handleAdminKickPlayer.
func (s *Server) handleKickFromQueue(w http.ResponseWriter, r *http.Request) {
	region := chi.URLParam(r, "region")
	playerID := chi.URLParam(r, "playerID")
	if region == "" || playerID == "" {
		http.Error(w, "region and player ID required", http.StatusBadRequest)
		return
	}

	if err := s.coord.AdminKickFromQueue(r.Context(), region, playerID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
