// Package lifecycle derives session status from the schedule and the clock.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"simplepaes/pkg/types"
)

// ErrMalformedSchedule is returned for sessions whose schedule cannot be evaluated
var ErrMalformedSchedule = errors.New("malformed session schedule")

// Config holds the timing parameters of the transition rules
type Config struct {
	// LobbyOpenOffset is how long before the start time the lobby opens
	LobbyOpenOffset time.Duration
	// PlannedDuration applies to sessions without their own duration
	PlannedDuration time.Duration
	// EndedRetention is how long ended sessions are kept; zero keeps them forever
	EndedRetention time.Duration
}

// DefaultConfig returns a 5 minute lobby window and a 60 minute session length
func DefaultConfig() Config {
	return Config{
		LobbyOpenOffset: 5 * time.Minute,
		PlannedDuration: 60 * time.Minute,
	}
}

// Validate ensures durations are usable
func (c Config) Validate() error {
	if c.LobbyOpenOffset < 0 {
		return errors.New("lobby open offset cannot be negative")
	}
	if c.PlannedDuration <= 0 {
		return errors.New("planned duration must be greater than 0")
	}
	if c.EndedRetention < 0 {
		return errors.New("ended retention cannot be negative")
	}
	return nil
}

// ComputeStatus returns the status session should have at now.
// Sessions without a start time are host-controlled and keep their status.
// The result never ranks below the current status.
func ComputeStatus(session *types.Session, now time.Time, cfg Config) (types.SessionStatus, error) {
	current := session.Status
	if !current.IsValid() {
		return current, fmt.Errorf("%w: unknown status %q", ErrMalformedSchedule, current)
	}
	if current == types.StatusEnded || session.ScheduledStartTime == nil {
		return current, nil
	}

	start := *session.ScheduledStartTime
	if start.IsZero() {
		return current, fmt.Errorf("%w: zero start time", ErrMalformedSchedule)
	}

	duration := cfg.PlannedDuration
	if session.DurationMinutes != nil {
		if *session.DurationMinutes < 0 {
			return current, fmt.Errorf("%w: negative duration %d", ErrMalformedSchedule, *session.DurationMinutes)
		}
		duration = time.Duration(*session.DurationMinutes) * time.Minute
	}

	var target types.SessionStatus
	switch {
	case !now.Before(start.Add(duration)):
		target = types.StatusEnded
	case !now.Before(start):
		target = types.StatusActive
	case !now.Before(start.Add(-cfg.LobbyOpenOffset)):
		target = types.StatusLobby
	default:
		target = types.StatusScheduled
	}

	if target.Rank() < current.Rank() {
		return current, nil
	}
	return target, nil
}
