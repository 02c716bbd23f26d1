package client

import "errors"

var (
	ErrUnauthorized      = errors.New("request was not authenticated")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrPollerRunning     = errors.New("poller is already running")
	ErrPollerNotRunning  = errors.New("poller is not running")
	ErrSubscriptionEnded = errors.New("subscription closed by server")
)
