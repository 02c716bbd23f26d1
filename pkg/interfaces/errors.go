package interfaces

import "errors"

// Common store errors used across components
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrInvalidState      = errors.New("operation not permitted in current session status")
	ErrAlreadyRegistered = errors.New("user already registered for this session")
	ErrNotRegistered     = errors.New("user is not registered for this session")
	ErrNotParticipant    = errors.New("user is not a participant of this session")
	ErrStoreClosed       = errors.New("session store is closed")
)
