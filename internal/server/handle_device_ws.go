package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
)

// deviceMessage is what a device sends up the socket. Heartbeats map onto
// the same narrow lastSeen write the HTTP endpoint uses; "ready" marks the
// device done loading its media.
type deviceMessage struct {
	Type string `json:"type"` // "heartbeat" or "ready"
	Role string `json:"role"`
}

// handleDeviceWS is the combined device channel: session documents stream
// down whenever the session changes, heartbeats come up on the same
// connection. The first frame down is the current snapshot.
func handleDeviceWS(logger *slog.Logger, store Store, broker *Broker, life *Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := store.GetSession(r.Context(), id)
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		ch := broker.Subscribe(id)
		defer broker.Unsubscribe(id, ch)

		// Reader: heartbeats and ready flips from the device.
		go func() {
			defer cancel()
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					logger.Debug("device socket read ended", "session", id, "error", err)
					return
				}
				var m deviceMessage
				if err := json.Unmarshal(msg, &m); err != nil || m.Role == "" {
					continue
				}
				switch m.Type {
				case "heartbeat":
					if err := life.Heartbeat(ctx, id, m.Role); err != nil {
						logger.Warn("heartbeat failed", "session", id, "role", m.Role, "error", err)
					}
				case "ready":
					if _, err := life.Ready(ctx, id, m.Role); err != nil {
						logger.Warn("ready failed", "session", id, "role", m.Role, "error", err)
					}
				}
			}
		}()

		snapshot, err := json.Marshal(sess)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, snapshot); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					logger.Debug("device socket write failed", "session", id, "error", err)
					return
				}
			}
		}
	}
}
