package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/quackamole-dev/quackamole-relay/catalog"
	"github.com/quackamole-dev/quackamole-relay/config"
	"github.com/quackamole-dev/quackamole-relay/directory"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/rooms"
)

// EventPublisher lets the HTTP surface publish room events the same way the
// realtime dispatcher does.
type EventPublisher interface {
	PublishRoomEvent(roomId, kind string, data interface{})
}

// Server is the thin HTTP surface over the room/user state. It holds no state
// of its own.
type Server struct {
	rooms  *rooms.Registry
	cat    *catalog.Catalog
	dir    *directory.Directory
	events EventPublisher
	cfg    *config.Config
}

func NewServer(reg *rooms.Registry, cat *catalog.Catalog, dir *directory.Directory, events EventPublisher, cfg *config.Config) *Server {
	return &Server{rooms: reg, cat: cat, dir: dir, events: events, cfg: cfg}
}

// Routes mounts the API on the given router under /api.
func (s *Server) Routes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.recoverMiddleware, corsMiddleware, s.authMiddleware)
	api.HandleFunc("/rooms", s.handleRoomList).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.handleRoomCreate).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}", s.handleRoomRetrieve).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", s.handleRoomUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/plugins", s.handlePluginList).Methods(http.MethodGet)
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

// recoverMiddleware converts an unhandled panic in a handler into a 500
// instead of letting it take the process down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				globals.AppLogger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the bearer-secret check when configured. The secret
// is the one issued at registration; there is no other credential.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RequireHTTPAuth {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		secret := strings.TrimPrefix(auth, "Bearer ")
		if secret == "" || secret == auth {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if _, err := s.dir.GetBySecret(secret); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
