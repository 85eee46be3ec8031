package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"dockhand/internal/audit"
	"dockhand/internal/config"
	"dockhand/internal/task"
)

type Server struct {
	router *chi.Mux
	server *http.Server
}

// New creates the API server over an already-constructed task manager; the
// process entry point owns both lifecycles.
func New(conf *config.DHConfig, manager *task.Manager, auditStore *audit.Store) *Server {
	router := chi.NewRouter()

	// Set up middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		serveJson(w, map[string]string{"status": "ok"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Mount("/tasks", NewTaskRouter(conf, manager, auditStore))
		r.Get("/audit", NewAuditHandler(auditStore))
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port),
			Handler: router,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start blocks until the listener stops
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func readJson(w http.ResponseWriter, r *http.Request, payload any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close request body")
		}
	}()

	err := json.NewDecoder(r.Body).Decode(payload)
	if err != nil {
		http.Error(w, "could not parse request body to payload", http.StatusBadRequest)
	}
	return err
}

func serveJson(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		http.Error(w, "Failed to encode payload", http.StatusInternalServerError)
		log.Error().Err(err).Msg("JSON encoding issue")
	}
}

// requestUser is the audit identity of the caller. Authentication itself is
// handled upstream; an unidentified caller is recorded as admin.
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-Username"); user != "" {
		return user
	}
	return "admin"
}
