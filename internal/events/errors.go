package events

import "errors"

var (
	ErrBusClosed     = errors.New("event bus is closed")
	ErrInvalidEvent  = errors.New("invalid event payload")
	ErrNotConfigured = errors.New("redis address is not configured")
)
