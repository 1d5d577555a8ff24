package server

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/swaggest/swgui/v5emb"

	"github.com/cluecraft/backstage/internal/config"
	"github.com/cluecraft/backstage/internal/game"
)

func addRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, store Store, broker *Broker, db *sql.DB, rdb *redis.Client) {
	liveness := game.Liveness{StaleAfter: cfg.StaleAfter}
	life := NewLifecycle(store, liveness)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Backstage API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, db, rdb))

	// Device and player routes.
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/lookup", handleSessionLookup(store))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleSessionState(store, liveness, cfg))
			r.Post("/claim", handleClaim(life))
			r.Post("/heartbeat", handleHeartbeat(life))
			r.Post("/ready", handleReady(life))
			r.Post("/solve", handleSolve(life))
			r.Get("/events", handleEvents(store, broker))
			r.Get("/ws", handleDeviceWS(logger, store, broker, life))
		})
	})

	// Admin console, behind the bearer-key gate.
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(adminAuthMiddleware(cfg.AdminKeyHash))

		r.Get("/events", handleAdminEvents(broker))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", handleAdminListSessions(store, liveness, cfg))
			r.Post("/", handleAdminCreateSession(life))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleSessionState(store, liveness, cfg))
				r.Delete("/", handleAdminDeleteSession(life))
				r.Post("/start", handleAdminStart(life))
				r.Post("/pause", handleAdminSetStatus(life, game.SessionPaused))
				r.Post("/resume", handleAdminSetStatus(life, game.SessionRunning))
				r.Post("/end", handleAdminSetStatus(life, game.SessionEnded))
				r.Post("/jump", handleAdminJump(life))
				r.Post("/resync", handleAdminResync(life))
			})
		})

		r.Route("/themes", func(r chi.Router) {
			r.Get("/", handleListThemes(store))
			r.Post("/", handleCreateTheme(store))
			r.Get("/{id}", handleGetTheme(store))
			r.Put("/{id}", handleUpdateTheme(store))
			r.Delete("/{id}", handleDeleteTheme(store))
		})
	})

	if cfg.SPADir != "" {
		if info, err := os.Stat(cfg.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", cfg.SPADir)
			r.NotFound(handleSPA(cfg.SPADir))
		}
	}
}
