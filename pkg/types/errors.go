package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 printable characters without whitespace")
	ErrInvalidSessionName = errors.New("session name must be 1-200 characters")
	ErrInvalidLevel       = errors.New("session level is required")
	ErrInvalidQuestion    = errors.New("questions need an id and a prompt")
	ErrInvalidDuration    = errors.New("duration must be between 1 and 1440 minutes")
	ErrInvalidStatus      = errors.New("status must be scheduled, lobby, active or ended")
	ErrInvalidInput       = errors.New("invalid input")
)
