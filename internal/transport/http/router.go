package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"interactive-gym/internal/stream"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type RouterDeps struct {
	Sessions    SessionReader
	Rooms       *stream.Rooms
	WS          http.HandlerFunc
	MCP         http.Handler
	History     History
	AdminAPIKey string
	StaticDir   string
}

func NewRouter(d RouterDeps) *chi.Mux {
	sessionHandlers := NewSessionHandlers(d.Sessions, d.Rooms)
	adminHandlers := NewAdminHandlers(d.History, d.Sessions)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware("/healthz")).Get("/healthz", adminHandlers.Health())
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}
	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		for _, m := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
			r.With(APILogMiddleware()).Method(m, "/mcp", d.MCP)
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Use(NoStore)
		r.Get("/capacity", sessionHandlers.Capacity())
		r.Get("/sessions", sessionHandlers.List())
		r.Get("/sessions/{session_id}", sessionHandlers.Get())
		r.Get("/sessions/{session_id}/events", sessionHandlers.Events())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminAPIKey))
			r.Get("/participants/{participant_id}", sessionHandlers.Participant())
			if d.History != nil {
				r.Get("/games", adminHandlers.Games())
				r.Get("/games/{session_id}", adminHandlers.Game())
			}
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})

	if d.StaticDir != "" {
		if info, err := os.Stat(d.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
		} else {
			log.Warn().Str("path", d.StaticDir).Msg("static_dir_missing")
		}
	}
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	var routes []routeDef
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk_routes_failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	fmt.Fprintf(&b, "Registered routes (%d):\n", len(routes))
	for _, rt := range routes {
		fmt.Fprintf(&b, "  %-7s %s\n", rt.Method, rt.Path)
	}
	fmt.Print(b.String())
}
