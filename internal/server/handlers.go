// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, authentication and read-only room queries.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	cfg      Config
	hub      *Hub
	auth     *auth.Service
	history  chat.MessageStore
	upgrader websocket.Upgrader
}

// NewServer creates the HTTP front end for hub. authSvc may be nil, which
// disables the auth endpoints and token checks.
func NewServer(cfg Config, hub *Hub, authSvc *auth.Service, history chat.MessageStore) *Server {
	cfg = sanitizeConfig(cfg)
	origins := newOriginPolicy(cfg.AllowedOrigins)
	return &Server{
		cfg:     cfg,
		hub:     hub,
		auth:    authSvc,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// WebSocketHandler upgrades the request and hands the connection to the hub.
// A token query parameter, when present, must be valid and binds the identity.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := s.authenticateSocket(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	client.identity = identity

	// The hub launches the pump goroutines once registered.
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

func (s *Server) authenticateSocket(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if s.cfg.RequireAuth {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return "", false
		}
		return "", true
	}

	if s.auth == nil {
		http.Error(w, "Authentication unavailable", http.StatusUnauthorized)
		return "", false
	}
	name, err := s.auth.Authenticate(token)
	if err != nil {
		log.Printf("Rejected WebSocket token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return "", false
	}
	return name, true
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return req, false
	}
	return req, true
}

// RegisterHandler creates an account and returns a session token.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := s.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, session)
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUsernameRequired),
		errors.Is(err, auth.ErrUsernameTooLong),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Register failed for %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "registration failed")
	}
}

// LoginHandler verifies credentials and returns a session token.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Printf("Login failed for %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "login failed")
	}
}

// ActiveRoomsHandler returns the current presence snapshot.
func (s *Server) ActiveRoomsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.hub.ActiveRooms(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "hub unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// RoomHistoryHandler returns the recent messages of a room, oldest first.
func (s *Server) RoomHistoryHandler(w http.ResponseWriter, r *http.Request) {
	room := chat.NormalizeRoom(mux.Vars(r)["room"])
	if room == "" {
		writeError(w, http.StatusBadRequest, "room name is required")
		return
	}

	messages, err := s.history.FindByRoom(r.Context(), room, s.cfg.HistoryLimit)
	if err != nil {
		log.Printf("Error loading history of room %q: %v", room, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
