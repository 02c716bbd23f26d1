package interfaces

// Connection represents a live subscriber connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and business logic
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the connected user's ID
	GetUserID() string

	// GetSessionID returns the session ID this connection is subscribed to
	GetSessionID() string

	// IsAuthenticated returns true once credentials are set
	IsAuthenticated() bool

	// SetCredentials binds the connection to a user and a session
	SetCredentials(userID, displayName, sessionID string) error
}
