package server

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cluecraft/backstage/internal/game"
)

// Theme authoring proper (forms, validation of role assignments, media
// upload) lives in the authoring subsystem; these endpoints are the storage
// seam it writes through and the catalog read the engines depend on.

type ThemeSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PrimaryRole string `json:"primaryRole"`
	PuzzleCount int    `json:"puzzleCount"`
}

func handleListThemes(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		themes, err := store.ListThemes(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		summaries := make([]ThemeSummary, 0, len(themes))
		for _, t := range themes {
			summaries = append(summaries, ThemeSummary{
				ID:          t.ID,
				Name:        t.Name,
				PrimaryRole: t.PrimaryRole,
				PuzzleCount: len(t.Puzzles),
			})
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

func handleGetTheme(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTheme(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrThemeNotFound) {
			writeError(w, http.StatusNotFound, "theme not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleCreateTheme(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t game.Theme
		if err := readJSON(r, &t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if t.Name == "" || t.PrimaryRole == "" {
			writeError(w, http.StatusBadRequest, "name and primaryRole are required")
			return
		}
		t.ID = uuid.NewString()
		t.CreatedAt = time.Now().UTC()
		normalizeTheme(&t)
		if err := store.PutTheme(r.Context(), t); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func handleUpdateTheme(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		existing, err := store.GetTheme(r.Context(), id)
		if errors.Is(err, ErrThemeNotFound) {
			writeError(w, http.StatusNotFound, "theme not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		var t game.Theme
		if err := readJSON(r, &t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t.ID = id
		t.CreatedAt = existing.CreatedAt
		normalizeTheme(&t)
		if err := store.PutTheme(r.Context(), t); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleDeleteTheme(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.DeleteTheme(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, ErrThemeNotFound):
			writeError(w, http.StatusNotFound, "theme not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func normalizeTheme(t *game.Theme) {
	sort.Slice(t.Puzzles, func(i, j int) bool { return t.Puzzles[i].Seq < t.Puzzles[j].Seq })
	for i := range t.Puzzles {
		if t.Puzzles[i].ID == "" {
			t.Puzzles[i].ID = uuid.NewString()
		}
		t.Puzzles[i].ThemeID = t.ID
	}
}
