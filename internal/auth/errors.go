package auth

import "errors"

var (
	ErrMissingIdentity = errors.New("missing authorization")
	ErrInvalidToken    = errors.New("invalid or expired token")
)
