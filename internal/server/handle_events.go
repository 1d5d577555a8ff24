package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleEvents streams full session documents over SSE whenever the session
// changes, opening with the current snapshot so a late subscriber doesn't
// have to wait for the next change. Document-level granularity only: a
// client cannot subscribe to one device's sub-state.
func handleEvents(store Store, broker *Broker) http.HandlerFunc {
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

		snapshot, err := json.Marshal(sess)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		streamSSE(w, r, broker, id, snapshot)
	}
}

// handleAdminEvents streams every session's commits, the dashboard firehose.
func handleAdminEvents(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamSSE(w, r, broker, CollectionSessions, nil)
	}
}

func streamSSE(w http.ResponseWriter, r *http.Request, broker *Broker, key string, initial []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	ch := broker.Subscribe(key)
	defer broker.Unsubscribe(key, ch)

	if initial != nil {
		fmt.Fprintf(w, "event: session\ndata: %s\n\n", initial)
		flusher.Flush()
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
