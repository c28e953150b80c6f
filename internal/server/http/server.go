// Package http implements the REST API server.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/orchestrator"
	"github.com/cpilot-dev/cpilot/internal/taskstore"
	"github.com/cpilot-dev/cpilot/internal/workspace"
)

// Server is the HTTP API server.
type Server struct {
	addr      string
	server    *http.Server
	router    *mux.Router
	orch      *orchestrator.Orchestrator
	settings  *workspace.SettingsManager
	tasks     *taskstore.Store
	version   string
	startTime time.Time
}

// New creates the HTTP server and registers all routes.
func New(host string, port int, orch *orchestrator.Orchestrator, settings *workspace.SettingsManager, tasks *taskstore.Store, version string) *Server {
	addr := fmt.Sprintf("%s:%d", host, port)

	s := &Server{
		addr:      addr,
		router:    mux.NewRouter(),
		orch:      orch,
		settings:  settings,
		tasks:     tasks,
		version:   version,
		startTime: time.Now(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: logRequests(s.router),
		// No ReadTimeout/WriteTimeout: the listener also carries long-lived
		// WebSocket connections, which manage their own deadlines.
	}

	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleTerminateSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/stats", s.handleSessionStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/start", s.handleStartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/stop", s.handleStopSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/keys", s.handleSendKey).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", s.handleEnqueueMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", s.handleClearMessages).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages/{msgID}", s.handleUpdateMessage).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{id}/messages/{msgID}", s.handleRemoveMessage).Methods(http.MethodDelete)

	api.HandleFunc("/workspace", s.handleGetWorkspace).Methods(http.MethodGet)
	api.HandleFunc("/workspace", s.handleSetWorkspace).Methods(http.MethodPut)

	api.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods(http.MethodDelete)
}

// SetWebSocketHandler mounts the WebSocket upgrade handler at /ws so the
// event stream shares the API listener. Must be called before Start.
func (s *Server) SetWebSocketHandler(handler http.HandlerFunc) {
	s.router.HandleFunc("/ws", handler)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("HTTP server starting")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

// logRequests logs every request with method, path, status and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
