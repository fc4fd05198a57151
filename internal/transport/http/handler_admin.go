package httptransport

import (
	"context"
	"errors"
	"net/http"

	"interactive-gym/internal/store"

	"github.com/go-chi/chi/v5"
)

// History is the persisted game log. It is nil when recording is off.
type History interface {
	Ping(ctx context.Context) error
	ListGames(ctx context.Context, limit, offset int) ([]store.GameRecord, error)
	GetGame(ctx context.Context, sessionUUID string) (*store.GameRecord, error)
	ListEpisodes(ctx context.Context, sessionUUID string) ([]store.EpisodeRecord, error)
}

type AdminHandlers struct {
	history  History
	sessions SessionReader
}

func NewAdminHandlers(history History, sessions SessionReader) *AdminHandlers {
	return &AdminHandlers{history: history, sessions: sessions}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capacity := h.sessions.Capacity()
		if h.history == nil {
			writeJSON(w, map[string]any{"ok": true, "db": "disabled", "capacity": capacity})
			return
		}
		if err := h.history.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"ok": false, "db": "down", "capacity": capacity})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "db": "up", "capacity": capacity})
	}
}

func (h *AdminHandlers) Games() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		metricHistoryQueryTotal.Add(1)
		items, err := h.history.ListGames(r.Context(), limit, offset)
		if err != nil {
			metricHistoryQueryErrors.Add(1)
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *AdminHandlers) Game() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := chi.URLParam(r, "session_id")
		metricHistoryQueryTotal.Add(1)
		g, err := h.history.GetGame(r.Context(), uuid)
		if errors.Is(err, store.ErrNotFound) {
			WriteHTTPError(w, http.StatusNotFound, "game_not_found")
			return
		}
		if err != nil {
			metricHistoryQueryErrors.Add(1)
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		episodes, err := h.history.ListEpisodes(r.Context(), uuid)
		if err != nil {
			metricHistoryQueryErrors.Add(1)
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"game": g, "episodes": episodes})
	}
}
