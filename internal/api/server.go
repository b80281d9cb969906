// Package api exposes the tracked focus state over HTTP: a snapshot
// endpoint, a WebSocket stream of focus events, and a health check.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/window"
)

// Server is the HTTP API server.
type Server struct {
	router    *mux.Router
	windowMgr *window.Manager
	upgrader  websocket.Upgrader
}

// NewServer creates an API server bound to the given window manager.
func NewServer(windowMgr *window.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		windowMgr: windowMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/window/current", s.handleCurrentWindow).Methods("GET")
	api.HandleFunc("/window/stream", s.handleWindowStream)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler, wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start starts the HTTP server on the given port and blocks.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("starting server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCurrentWindow(w http.ResponseWriter, r *http.Request) {
	current := s.windowMgr.Current()
	if current == nil {
		http.Error(w, "no focus event observed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, current)
}

func (s *Server) handleWindowStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.windowMgr.Subscribe()
	defer s.windowMgr.Unsubscribe(events)

	// Send the current state first so clients do not wait for the next
	// focus change.
	if current := s.windowMgr.Current(); current != nil {
		if err := conn.WriteJSON(current); err != nil {
			return
		}
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("websocket write failed, dropping client")
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "ok",
		"backend": s.windowMgr.BackendName(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("failed to encode response")
	}
}
