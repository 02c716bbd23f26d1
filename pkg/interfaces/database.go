package interfaces

import (
	"context"
	"time"

	"simplepaes/pkg/types"
)

// SessionStore is the single source of truth for sessions and their nested
// registration and participant records
// ARCHITECTURAL DISCOVERY: Every mutating method is atomic with respect to the session
// it touches. Status guards are evaluated inside the same critical section as the write,
// so a check-then-act race between two callers cannot occur.
type SessionStore interface {
	// CreateSession stores a new session; ErrSessionExists if the ID is taken
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession returns a copy of the session or ErrSessionNotFound
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// ListSessions returns copies of every stored session in no particular order
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// DeleteSession removes a session and all of its records
	DeleteSession(ctx context.Context, sessionID string) error

	// UpdateStatus moves the session from one status to another if it is still in from.
	// changed is false when the session had already left from. EndedAt is stamped
	// with at when to is ended.
	UpdateStatus(ctx context.Context, sessionID string, from, to types.SessionStatus, at time.Time) (changed bool, err error)

	// UpsertRegistration adds a registration record. ErrInvalidState when the session
	// status is not in allowed (an empty allowed list accepts any status),
	// ErrAlreadyRegistered when the user already holds one.
	UpsertRegistration(ctx context.Context, sessionID string, reg types.Registration, allowed ...types.SessionStatus) error

	// RemoveRegistration deletes the user's registration or returns ErrNotRegistered
	RemoveRegistration(ctx context.Context, sessionID, userID string) error

	// UpsertParticipant adds a participant record if absent. created is false when the
	// user was already present; the existing record is kept untouched.
	UpsertParticipant(ctx context.Context, sessionID string, p types.Participant, allowed ...types.SessionStatus) (created bool, err error)

	// RemoveParticipant deletes the user's participant record or returns ErrNotParticipant
	RemoveParticipant(ctx context.Context, sessionID, userID string) error

	// HealthCheck verifies the backing storage is reachable
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store
	Close() error
}

// StatusAllowed reports whether status is in allowed; an empty list allows everything
func StatusAllowed(status types.SessionStatus, allowed []types.SessionStatus) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == status {
			return true
		}
	}
	return false
}
