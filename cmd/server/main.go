package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/admin"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/broadcaster"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/config"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/coordinator"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/gateway"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/logging"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/outbox"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/router"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/rpcbridge"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/session"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/supervisor"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogPath, cfg.DevMode)
	if err != nil {
		panic(err)
	}
	log.WithField("backendId", cfg.BackendID).Info("starting coordination core")

	kvStore := kv.New(cfg.RedisAddr, cfg.RedisDB)

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open match history database")
	}
	defer db.Close()

	sessions := session.New(kvStore, log)
	ob := outbox.New(kvStore, cfg.MaxPendingEventsPerPlayer)
	super := supervisor.New(kvStore, cfg.BackendID)

	gw := gateway.New(sessions, ob, log)

	bridge := rpcbridge.New(gw, log)
	bcast := broadcaster.New(sessions, ob, gw, log)

	coord := coordinator.New(coordinator.Config{
		AcceptTimeout:    cfg.AcceptTimeout,
		DraftStepTimeout: cfg.DraftStepTimeout,
		SpecialUsers:     specialUsersList(cfg.SpecialUsers),
		BackendID:        cfg.BackendID,
	}, db, bcast, super, sessions, bridge, log)

	rt := router.New(sessions, super, coord, bridge, gw, kvStore, cfg.SpecialUsers, log)
	gw.SetDispatcher(rt)

	adminSrv := admin.New(coord, kvStore, db, admin.Config{Token: os.Getenv("ADMIN_TOKEN")}, log)

	mux := chi.NewRouter()
	mux.Get("/ws", gw.ServeHTTP)
	mux.Mount("/", adminSrv)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go coord.Run(ctx)
	go super.RunHeartbeat(ctx)

	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

// specialUsersList converts config's normalized-name set into the slice
// (in map iteration order) internal/coordinator.Config expects, since the coordinator package
// re-exports SpecialUsers for voting.IsPrivileged's membership check rather
// than depending on internal/config directly.
func specialUsersList(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}
