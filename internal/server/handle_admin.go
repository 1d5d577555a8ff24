package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cluecraft/backstage/internal/config"
	"github.com/cluecraft/backstage/internal/game"
)

type CreateSessionRequest struct {
	ThemeID string `json:"themeId"`
}

func handleAdminCreateSession(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(r, &req); err != nil || req.ThemeID == "" {
			writeError(w, http.StatusBadRequest, "themeId is required")
			return
		}
		sess, err := life.Create(r.Context(), req.ThemeID)
		switch {
		case errors.Is(err, ErrThemeNotFound):
			writeError(w, http.StatusNotFound, "theme not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusCreated, sess)
		}
	}
}

func handleAdminListSessions(store Store, liveness game.Liveness, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := store.ListSessions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		now := time.Now()
		views := make([]SessionResponse, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, sessionResponse(sess, liveness, cfg, now))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleAdminDeleteSession(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := life.Delete(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func handleAdminStart(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := life.Start(r.Context(), chi.URLParam(r, "id"))
		writeLifecycleResult(w, sess, err)
	}
}

func handleAdminSetStatus(life *Lifecycle, status game.SessionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := life.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
		writeLifecycleResult(w, sess, err)
	}
}

func handleAdminResync(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := life.Resync(r.Context(), chi.URLParam(r, "id"))
		writeLifecycleResult(w, sess, err)
	}
}

type JumpRequest struct {
	// Target is the sequence number the session should sit at afterwards:
	// the state is rebuilt as if every trigger puzzle below it had been
	// solved in order.
	Target int `json:"target"`
	// Status to combine with the rebuilt state. Defaults to running.
	Status string `json:"status,omitempty"`
}

func handleAdminJump(life *Lifecycle) http.HandlerFunc {
	valid := map[game.SessionStatus]bool{
		game.SessionPending: true,
		game.SessionRunning: true,
		game.SessionPaused:  true,
		game.SessionEnded:   true,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req JumpRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Target < 0 {
			writeError(w, http.StatusBadRequest, "target must not be negative")
			return
		}
		status := game.SessionStatus(req.Status)
		if req.Status == "" {
			status = game.SessionRunning
		}
		if !valid[status] {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		sess, err := life.Jump(r.Context(), chi.URLParam(r, "id"), req.Target, status)
		writeLifecycleResult(w, sess, err)
	}
}

func writeLifecycleResult(w http.ResponseWriter, sess game.Session, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, ErrThemeNotFound):
		writeError(w, http.StatusConflict, "session's theme no longer exists")
	case errors.Is(err, ErrVersionConflict):
		writeError(w, http.StatusConflict, "session busy, try again")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}
