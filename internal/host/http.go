package host

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// API is the read-only HTTP observation surface of a session: the latest
// state snapshot and connection stats. It never mutates game state.
type API struct {
	session *Session
}

// NewAPI wraps a session.
func NewAPI(session *Session) *API {
	return &API{session: session}
}

// Handler returns the CORS-wrapped route handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/api/rooms/", a.handleRooms)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// handleRooms serves /api/rooms/{code}/state and /api/rooms/{code}/stats.
func (a *API) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	code, resource := parts[0], parts[1]
	if code != a.session.RoomCode() {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	switch resource {
	case "state":
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(a.session.Snapshot()); err != nil {
			log.Error().Err(err).Msg("failed to write state response")
		}
	case "stats":
		stats := map[string]any{
			"room":                 a.session.RoomCode(),
			"connections":          a.session.Registry().Count(),
			"controller_connected": a.session.Registry().ControllerConnected(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Error().Err(err).Msg("failed to encode stats response")
		}
	default:
		http.NotFound(w, r)
	}
}
