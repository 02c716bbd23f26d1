package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// closeWaitTimeout bounds how long a graceful close waits for the writers.
// It exceeds the default write timeout so a healthy flush always finishes first.
const closeWaitTimeout = 10 * time.Second

// Registry tracks live subscribers per session
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic.
// A user may watch several sessions at once, so connections are keyed by session then user.
type Registry struct {
	mu       sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out
	sessions map[string]map[string]*Connection // sessionID -> userID -> Connection
	logger   *zap.Logger
}

// NewRegistry creates a new connection registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
		logger:   logger.Named("registry"),
	}
}

// RegisterConnection adds conn, replacing any earlier connection of the same
// user to the same session
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	users := r.sessions[sessionID]
	if users == nil {
		users = make(map[string]*Connection)
		r.sessions[sessionID] = users
	}

	// FUNCTIONAL DISCOVERY: Close the replaced connection asynchronously to avoid
	// blocking registration on a slow socket
	if existing, exists := users[userID]; exists && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Debug("failed to close replaced connection",
					zap.String("session_id", sessionID),
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}()
	}
	users[userID] = conn

	return nil
}

// UnregisterConnection removes conn if it is still the registered instance
// RACE CONDITION FIX: an old connection's cleanup must not remove its replacement
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	userID := conn.GetUserID()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.sessions[sessionID]
	if !exists || users[userID] != conn {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.sessions, sessionID)
	}
}

// GetConnection returns the connection of userID watching sessionID
func (r *Registry) GetConnection(sessionID, userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.sessions[sessionID][userID]
	return conn, exists
}

// GetSessionConnections returns every subscriber of a session
func (r *Registry) GetSessionConnections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.sessions[sessionID]))
	for _, conn := range r.sessions[sessionID] {
		connections = append(connections, conn)
	}
	return connections
}

// Broadcast writes v to every subscriber of sessionID and returns how many
// accepted it. Subscribers that fail are closed; their handler unregisters them.
func (r *Registry) Broadcast(sessionID string, v interface{}) int {
	delivered := 0
	for _, conn := range r.GetSessionConnections(sessionID) {
		if err := conn.WriteJSON(v); err != nil {
			r.logger.Debug("dropping subscriber",
				zap.String("session_id", sessionID),
				zap.String("user_id", conn.GetUserID()),
				zap.Error(err))
			conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// CloseSession disconnects every subscriber of a removed session after their
// queued events are delivered
func (r *Registry) CloseSession(sessionID string) int {
	r.mu.Lock()
	users := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	connections := make([]*Connection, 0, len(users))
	for _, conn := range users {
		connections = append(connections, conn)
	}
	closeGracefully(connections)
	return len(connections)
}

// CloseAll disconnects every subscriber, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	var connections []*Connection
	for _, users := range sessions {
		for _, conn := range users {
			connections = append(connections, conn)
		}
	}
	closeGracefully(connections)
}

// closeGracefully flushes all connections in parallel and waits for them.
// Connections still open after closeWaitTimeout are closed hard.
func closeGracefully(connections []*Connection) {
	for _, conn := range connections {
		conn.CloseGracefully()
	}

	timer := time.NewTimer(closeWaitTimeout)
	defer timer.Stop()
	expired := false
	for _, conn := range connections {
		if !expired {
			select {
			case <-conn.Done():
				continue
			case <-timer.C:
				expired = true
			}
		}
		conn.Close()
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, users := range r.sessions {
		total += len(users)
	}
	return map[string]int{
		"total_connections": total,
		"watched_sessions":  len(r.sessions),
	}
}
