package interfaces

import (
	"context"

	"simplepaes/pkg/types"
)

// Result is what every user action returns across the UI boundary
// FUNCTIONAL DISCOVERY: Callers render Error inline next to the action button,
// Code lets HTTP and programmatic clients branch without parsing text.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Result codes
const (
	CodeNotFound          = "not_found"
	CodeInvalidState      = "invalid_state"
	CodeAlreadyRegistered = "already_registered"
	CodeNotRegistered     = "not_registered"
	CodeNotParticipant    = "not_participant"
	CodeValidation        = "validation_error"
	CodeForbidden         = "forbidden"
	CodeInternal          = "internal"
)

// SessionService is the surface the live-practice UI consumes
type SessionService interface {
	// GetAllAvailableSessions returns the sessions a caller should see and act on
	GetAllAvailableSessions(ctx context.Context) ([]*types.Session, error)

	// UpdateSessionStatuses reconciles time-based status transitions
	UpdateSessionStatuses(ctx context.Context) ([]types.Transition, error)

	// RegisterForSession enrolls a user ahead of a scheduled session
	RegisterForSession(ctx context.Context, sessionID string, user types.UserRef) Result

	// UnregisterFromSession withdraws a registration
	UnregisterFromSession(ctx context.Context, sessionID, userID string) Result

	// JoinSession admits a user into the lobby or active room
	JoinSession(ctx context.Context, sessionID string, user types.UserRef) Result

	// LeaveSession removes a user from the room
	LeaveSession(ctx context.Context, sessionID, userID string) Result
}

// EventPublisher receives session change notifications
// ARCHITECTURAL DISCOVERY: Publishing is fire-and-forget; managers never block
// on subscribers and never hold a store lock while publishing.
type EventPublisher interface {
	Publish(event types.Event)
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(types.Event) {}
