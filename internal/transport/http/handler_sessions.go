package httptransport

import (
	"net/http"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/game"
	"interactive-gym/internal/stream"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// SessionReader is the read side of the coordinator.
type SessionReader interface {
	Sessions() []game.Snapshot
	Snapshot(sessionUUID string) (game.Snapshot, bool)
	Capacity() arena.Capacity
	Participant(participantID string) (arena.ParticipantInfo, bool)
}

type SessionHandlers struct {
	sessions SessionReader
	rooms    *stream.Rooms
}

func NewSessionHandlers(sessions SessionReader, rooms *stream.Rooms) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, rooms: rooms}
}

func (h *SessionHandlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		status := r.URL.Query().Get("status")
		all := h.sessions.Sessions()
		items := make([]game.Snapshot, 0, len(all))
		for _, snap := range all {
			if status != "" && snap.Status.String() != status {
				continue
			}
			items = append(items, snap)
		}
		total := len(items)
		start := min(offset, total)
		end := min(start+limit, total)
		writeJSON(w, map[string]any{"items": items[start:end], "total": total, "limit": limit, "offset": offset})
	}
}

func (h *SessionHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := h.sessions.Snapshot(chi.URLParam(r, "session_id"))
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		writeJSON(w, snap)
	}
}

func (h *SessionHandlers) Capacity() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, h.sessions.Capacity())
	}
}

func (h *SessionHandlers) Participant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := h.sessions.Participant(chi.URLParam(r, "participant_id"))
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "participant_not_found")
			return
		}
		writeJSON(w, info)
	}
}

// Events streams a session's room broadcasts to spectators.
func (h *SessionHandlers) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		buf, ok := h.rooms.Get(sessionID)
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		if _, ok := w.(http.Flusher); !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
			return
		}

		metricSpectatorSSETotal.Add(1)
		metricSpectatorSSEActive.Add(1)
		defer metricSpectatorSSEActive.Add(-1)

		reqID := chimw.GetReqID(r.Context())
		log.Info().Str("request_id", reqID).Str("session_uuid", sessionID).Msg("spectator_stream_opened")
		err := stream.Serve(w, r, buf)
		evt := log.Info()
		if err != nil {
			evt = log.Warn().Err(err)
		}
		evt.Str("request_id", reqID).Str("session_uuid", sessionID).Msg("spectator_stream_closed")
	}
}
