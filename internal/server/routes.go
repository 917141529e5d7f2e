// Package server wires HTTP handlers into a gorilla/mux router for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns the router with all application routes.
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.WebSocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	if s.auth != nil {
		api.HandleFunc("/register", s.RegisterHandler).Methods(http.MethodPost)
		api.HandleFunc("/login", s.LoginHandler).Methods(http.MethodPost)
	}
	api.HandleFunc("/rooms", s.ActiveRoomsHandler).Methods(http.MethodGet)
	if s.history != nil {
		api.HandleFunc("/rooms/{room}/messages", s.RoomHistoryHandler).Methods(http.MethodGet)
	}
	return r
}
