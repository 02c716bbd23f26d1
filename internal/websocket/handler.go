package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"simplepaes/internal/config"
	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances
var upgrader = websocket.Upgrader{
	// FUNCTIONAL DISCOVERY: Origin is not checked; identity comes from the token or headers
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// SessionReader loads the session a subscriber asks to watch
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// Identifier resolves the calling user from a handshake request
type Identifier interface {
	Identify(r *http.Request) (types.UserRef, error)
}

// Handler upgrades session subscriptions
// ARCHITECTURAL DISCOVERY: Validation happens before the upgrade so rejected
// requests get a plain HTTP status instead of a dangling socket
type Handler struct {
	registry *Registry
	sessions SessionReader
	identity Identifier
	config   *config.WebSocketConfig
	logger   *zap.Logger
}

// NewHandler creates a websocket handler
func NewHandler(registry *Registry, sessions SessionReader, identity Identifier, cfg *config.WebSocketConfig, logger *zap.Logger) *Handler {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		sessions: sessions,
		identity: identity,
		config:   cfg,
		logger:   logger.Named("websocket"),
	}
}

// HandleWebSocket serves GET /ws?session_id=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, ErrMissingSessionID.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.identity.Identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "Session lookup failed", http.StatusInternalServerError)
		return
	case session.Status == types.StatusEnded:
		http.Error(w, ErrSessionEnded.Error(), http.StatusGone)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, h.config.BufferSize, h.config.WriteTimeout)
	if err := wsConn.SetCredentials(user.ID, user.DisplayName, sessionID); err != nil {
		_ = wsConn.Close()
		return
	}

	// Snapshot is queued before registration so it always precedes change events
	snapshot := types.Event{
		Type:      types.EventSnapshot,
		SessionID: sessionID,
		Session:   session,
		Timestamp: time.Now(),
	}
	if err := wsConn.WriteJSON(snapshot); err != nil {
		_ = wsConn.Close()
		return
	}

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		h.logger.Warn("failed to register subscriber", zap.Error(err))
		_ = wsConn.Close()
		return
	}

	h.logger.Info("subscriber connected",
		zap.String("session_id", sessionID),
		zap.String("user_id", user.ID))

	go h.handleConnection(wsConn)
}

// handleConnection keeps the socket alive until the client goes away.
// FUNCTIONAL DISCOVERY: Disconnecting only stops the feed; lobby membership is
// untouched so a reconnecting user is still in the room.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Debug("subscriber disconnected",
			zap.String("session_id", conn.GetSessionID()),
			zap.String("user_id", conn.GetUserID()))
	}()

	readTimeout := h.config.ReadTimeout
	pingInterval := h.config.PingInterval
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	if pingInterval <= 0 || pingInterval >= readTimeout {
		pingInterval = readTimeout / 2
	}

	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	// The feed is one-way; client frames are read only to process control messages
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
