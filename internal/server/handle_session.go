package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cluecraft/backstage/internal/config"
	"github.com/cluecraft/backstage/internal/game"
)

type LookupResponse struct {
	SessionID string `json:"sessionId"`
	ThemeID   string `json:"themeId"`
	Status    string `json:"status"`
}

func handleSessionLookup(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
		if code == "" {
			writeError(w, http.StatusBadRequest, "code query parameter required")
			return
		}
		sess, err := store.SessionByJoinCode(r.Context(), code)
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "no session with that code")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, LookupResponse{
			SessionID: sess.ID,
			ThemeID:   sess.ThemeID,
			Status:    string(sess.Status),
		})
	}
}

// DeviceView is a device record plus the aliveness judgment every reader
// derives locally from heartbeat age.
type DeviceView struct {
	Role     string           `json:"role"`
	Status   game.DeviceStatus `json:"status"`
	LastSeen time.Time        `json:"lastSeen,omitzero"`
	Alive    bool             `json:"alive"`
	Media    game.MediaEffect `json:"media"`
}

// LivenessInfo tells clients which timing parameters the server judges by.
type LivenessInfo struct {
	StaleAfterSeconds        int `json:"staleAfterSeconds"`
	HeartbeatIntervalSeconds int `json:"heartbeatIntervalSeconds"`
	ResampleTickSeconds      int `json:"resampleTickSeconds"`
}

type SessionResponse struct {
	ID       string               `json:"id"`
	ThemeID  string               `json:"themeId"`
	JoinCode string               `json:"joinCode"`
	Status   game.SessionStatus   `json:"status"`
	Pointer  int                  `json:"pointer"`
	Solved   map[string]time.Time `json:"solved"`
	Devices  []DeviceView         `json:"devices"`
	Liveness LivenessInfo         `json:"liveness"`
}

func sessionResponse(sess game.Session, liveness game.Liveness, cfg *config.Config, now time.Time) SessionResponse {
	devices := make([]DeviceView, 0, len(sess.Devices))
	for role, d := range sess.Devices {
		devices = append(devices, DeviceView{
			Role:     role,
			Status:   d.Status,
			LastSeen: d.LastSeen,
			Alive:    liveness.Alive(d, now),
			Media:    d.Media,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Role < devices[j].Role })

	return SessionResponse{
		ID:       sess.ID,
		ThemeID:  sess.ThemeID,
		JoinCode: sess.JoinCode,
		Status:   sess.Status,
		Pointer:  sess.Pointer,
		Solved:   sess.Solved,
		Devices:  devices,
		Liveness: LivenessInfo{
			StaleAfterSeconds:        int(cfg.StaleAfter.Seconds()),
			HeartbeatIntervalSeconds: int(cfg.HeartbeatInterval.Seconds()),
			ResampleTickSeconds:      int(cfg.LivenessTick.Seconds()),
		},
	}
}

func handleSessionState(store Store, liveness game.Liveness, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.GetSession(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(sess, liveness, cfg, time.Now()))
	}
}

type ClaimRequest struct {
	Role string `json:"role"`
}

func handleClaim(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClaimRequest
		if err := readJSON(r, &req); err != nil || strings.TrimSpace(req.Role) == "" {
			writeError(w, http.StatusBadRequest, "role is required")
			return
		}
		sess, err := life.Claim(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Role))
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, ErrRoleClaimed):
			writeError(w, http.StatusConflict, "role is claimed by a live device")
		case errors.Is(err, ErrVersionConflict):
			writeError(w, http.StatusConflict, "session busy, try again")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"role":    req.Role,
				"session": sess,
			})
		}
	}
}

type HeartbeatRequest struct {
	Role string `json:"role"`
}

func handleHeartbeat(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if err := readJSON(r, &req); err != nil || req.Role == "" {
			writeError(w, http.StatusBadRequest, "role is required")
			return
		}
		err := life.Heartbeat(r.Context(), chi.URLParam(r, "id"), req.Role)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "role has no device record")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func handleReady(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if err := readJSON(r, &req); err != nil || req.Role == "" {
			writeError(w, http.StatusBadRequest, "role is required")
			return
		}
		_, err := life.Ready(r.Context(), chi.URLParam(r, "id"), req.Role)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "role has no device record")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

type SolveRequest struct {
	Role   string `json:"role"`
	Answer string `json:"answer"`
}

type SolveResponse struct {
	Correct         bool `json:"correct"`
	Seq             int  `json:"seq"`
	Pointer         int  `json:"pointer,omitempty"`
	SessionComplete bool `json:"sessionComplete,omitempty"`
}

func handleSolve(life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SolveRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Answer = strings.TrimSpace(req.Answer)
		if req.Role == "" || req.Answer == "" {
			writeError(w, http.StatusBadRequest, "role and answer are required")
			return
		}

		out, err := life.Solve(r.Context(), chi.URLParam(r, "id"), req.Role, req.Answer)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
			return
		case errors.Is(err, ErrSessionNotActive):
			writeError(w, http.StatusConflict, "session is not running")
			return
		case errors.Is(err, ErrNoCurrentPuzzle):
			writeError(w, http.StatusConflict, "no trigger puzzle remains")
			return
		case errors.Is(err, ErrWrongDevice):
			writeError(w, http.StatusConflict, "puzzle belongs to another device role")
			return
		case errors.Is(err, ErrVersionConflict):
			writeError(w, http.StatusConflict, "session busy, try again")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := SolveResponse{Correct: out.Correct, Seq: out.Seq}
		if out.Correct {
			resp.Pointer = out.Session.Pointer
			resp.SessionComplete = out.Complete
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
