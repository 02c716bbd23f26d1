package session

import (
	"errors"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Session management error types
var (
	ErrValidation         = errors.New("invalid request")
	ErrForbidden          = errors.New("only the session host may do this")
	ErrBackwardTransition = errors.New("session status can only move forward")
)

// User-facing messages per result code
const (
	msgNotFound           = "Session not found"
	msgRegistrationClosed = "Registration is only open while the session is scheduled"
	msgNotJoinable        = "The session is not open for joining"
	msgAlreadyRegistered  = "You are already registered for this session"
	msgNotRegistered      = "You are not registered for this session"
	msgNotParticipant     = "You are not in this session"
	msgForbidden          = "Only the session host can change its status"
	msgInternal           = "Something went wrong, please try again"
)

// CodeFor classifies err into a Result code
func CodeFor(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return interfaces.CodeNotFound
	case errors.Is(err, interfaces.ErrInvalidState), errors.Is(err, ErrBackwardTransition):
		return interfaces.CodeInvalidState
	case errors.Is(err, interfaces.ErrAlreadyRegistered):
		return interfaces.CodeAlreadyRegistered
	case errors.Is(err, interfaces.ErrNotRegistered):
		return interfaces.CodeNotRegistered
	case errors.Is(err, interfaces.ErrNotParticipant):
		return interfaces.CodeNotParticipant
	case errors.Is(err, ErrValidation),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidSessionName),
		errors.Is(err, types.ErrInvalidLevel),
		errors.Is(err, types.ErrInvalidQuestion),
		errors.Is(err, types.ErrInvalidDuration),
		errors.Is(err, types.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidInput):
		return interfaces.CodeValidation
	case errors.Is(err, ErrForbidden):
		return interfaces.CodeForbidden
	default:
		return interfaces.CodeInternal
	}
}
