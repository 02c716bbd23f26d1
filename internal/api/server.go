package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"simplepaes/internal/auth"
	"simplepaes/internal/session"
	"simplepaes/internal/websocket"
	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Service is the session surface the HTTP layer drives
type Service interface {
	interfaces.SessionService

	ListSessions(ctx context.Context, filter session.Filter) ([]*types.Session, error)
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	CreateSession(ctx context.Context, host types.UserRef, input types.NewSession) (*types.Session, error)
	SetStatus(ctx context.Context, sessionID string, caller types.UserRef, status types.SessionStatus) interfaces.Result
	HealthCheck(ctx context.Context) error
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetSessionConnections(sessionID string) []*websocket.Connection
	GetStats() map[string]int
}

// Server is the HTTP layer between clients and the session manager
// ARCHITECTURAL DISCOVERY: No business logic here, only routing, identity and JSON.
// Every action result is passed through unchanged so the UI can show its message.
type Server struct {
	service  Service
	registry Registry
	auth     *auth.Authenticator
	limiter  *RateLimiter
	logger   *zap.Logger
	router   *mux.Router
	handler  http.Handler
}

// NewServer wires the routes
func NewServer(service Service, registry Registry, authenticator *auth.Authenticator, limiter *RateLimiter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewRateLimiter(0)
	}
	s := &Server{
		service:  service,
		registry: registry,
		auth:     authenticator,
		limiter:  limiter,
		logger:   logger.Named("api"),
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	// CORS wraps the router so preflight requests never reach method matching
	s.handler = corsMiddleware(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", jsonMiddleware(http.HandlerFunc(s.healthCheck))).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonMiddleware, s.auth.Middleware, s.rateLimitMiddleware)
	user := s.auth.RequireUser

	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.Handle("/sessions", user(http.HandlerFunc(s.createSession))).Methods(http.MethodPost)
	api.HandleFunc("/sessions/statuses", s.updateStatuses).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)

	api.Handle("/sessions/{id}/register", user(http.HandlerFunc(s.register))).Methods(http.MethodPost)
	api.Handle("/sessions/{id}/register", user(http.HandlerFunc(s.unregister))).Methods(http.MethodDelete)
	api.Handle("/sessions/{id}/join", user(http.HandlerFunc(s.join))).Methods(http.MethodPost)
	api.Handle("/sessions/{id}/join", user(http.HandlerFunc(s.leave))).Methods(http.MethodDelete)
	api.Handle("/sessions/{id}/status", user(http.HandlerFunc(s.setStatus))).Methods(http.MethodPut)

	notFound := jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "Route not found", http.StatusNotFound)
	}))
	methodNotAllowed := jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))

	// TECHNICAL DISCOVERY: mux does not propagate a subrouter's method mismatch to the
	// parent, so the /api subrouter needs its own handlers to answer 405
	s.router.NotFoundHandler = notFound
	s.router.MethodNotAllowedHandler = methodNotAllowed
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
}

// HandleWebSocket mounts the live session feed
func (s *Server) HandleWebSocket(path string, handler http.HandlerFunc) {
	s.router.HandleFunc(path, handler).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// GET /api/sessions[?level=][&include_ended=]
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := session.Filter{Level: query.Get("level")}
	if raw := query.Get("include_ended"); raw != "" {
		includeEnded, err := strconv.ParseBool(raw)
		if err != nil {
			sendError(w, "include_ended must be a boolean", http.StatusBadRequest)
			return
		}
		filter.IncludeEnded = &includeEnded
	}

	sessions, err := s.service.ListSessions(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

// POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	host, _ := auth.FromContext(r.Context())

	var input types.NewSession
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.service.CreateSession(r.Context(), host, input)
	if err != nil {
		if session.CodeFor(err) == interfaces.CodeValidation {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("create session failed", zap.String("user_id", host.ID), zap.Error(err))
		sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Session: created})
}

// GET /api/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	found, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get session failed", zap.String("session_id", sessionID), zap.Error(err))
		sendError(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	count := 0
	if s.registry != nil {
		count = len(s.registry.GetSessionConnections(sessionID))
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: found, ConnectionCount: count})
}

// POST /api/sessions/statuses
func (s *Server) updateStatuses(w http.ResponseWriter, r *http.Request) {
	transitions, err := s.service.UpdateSessionStatuses(r.Context())
	if err != nil {
		// Partial failures still applied the other transitions
		s.logger.Warn("status update incomplete", zap.Error(err))
	}
	if transitions == nil {
		transitions = []types.Transition{}
	}
	writeJSON(w, http.StatusOK, StatusUpdateResponse{Transitions: transitions})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	sendResult(w, s.service.RegisterForSession(r.Context(), mux.Vars(r)["id"], user))
}

func (s *Server) unregister(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	sendResult(w, s.service.UnregisterFromSession(r.Context(), mux.Vars(r)["id"], user.ID))
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	sendResult(w, s.service.JoinSession(r.Context(), mux.Vars(r)["id"], user))
}

func (s *Server) leave(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	sendResult(w, s.service.LeaveSession(r.Context(), mux.Vars(r)["id"], user.ID))
}

// PUT /api/sessions/{id}/status
func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	sendResult(w, s.service.SetStatus(r.Context(), mux.Vars(r)["id"], user, req.Status))
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "healthy",
	}
	if err := s.service.HealthCheck(ctx); err != nil {
		response.Status = "unhealthy"
		response.Database = fmt.Sprintf("error: %v", err)
	}
	if s.registry != nil {
		response.Connections = s.registry.GetStats()
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if response.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// rateLimitMiddleware limits each caller, keyed by user ID or remote address
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			s.logger.Debug("rate limited", zap.String("client", key))
			sendError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if user, ok := auth.FromContext(r.Context()); ok {
		return "user:" + user.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.HeaderUserID+", "+auth.HeaderUserName)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
