package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Engine applies ComputeStatus to every stored session
type Engine struct {
	store  interfaces.SessionStore
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an engine using the wall clock
func NewEngine(store interfaces.SessionStore, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		config: config,
		logger: logger.Named("lifecycle"),
		now:    time.Now,
	}
}

// SetClock replaces the time source, mainly for tests
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the engine timing parameters
func (e *Engine) Config() Config {
	return e.config
}

// UpdateSessionStatuses moves every session to the status its schedule implies.
// FUNCTIONAL DISCOVERY: Writes are compare-and-set on the status read here, so a
// concurrent manual change or another poller wins and is never overwritten.
// Calling it twice with the same clock yields no transitions the second time.
func (e *Engine) UpdateSessionStatuses(ctx context.Context) ([]types.Transition, error) {
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := e.now()
	transitions := []types.Transition{}
	var errs []error

	for _, session := range sessions {
		if session.Status == types.StatusEnded {
			continue
		}

		next, err := ComputeStatus(session, now, e.config)
		if err != nil {
			e.logger.Warn("skipping session with malformed schedule",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			continue
		}
		if next == session.Status {
			continue
		}

		changed, err := e.store.UpdateStatus(ctx, session.ID, session.Status, next, now)
		if err != nil {
			if errors.Is(err, interfaces.ErrSessionNotFound) {
				continue
			}
			e.logger.Error("failed to update session status",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		if !changed {
			e.logger.Debug("status changed concurrently", zap.String("session_id", session.ID))
			continue
		}

		e.logger.Info("session status changed",
			zap.String("session_id", session.ID),
			zap.String("from", string(session.Status)),
			zap.String("to", string(next)),
		)
		transitions = append(transitions, types.Transition{
			SessionID: session.ID,
			From:      session.Status,
			To:        next,
			At:        now,
		})
	}

	return transitions, errors.Join(errs...)
}

// PurgeEnded deletes ended sessions older than the retention window and
// returns the removed session IDs
func (e *Engine) PurgeEnded(ctx context.Context) ([]string, error) {
	if e.config.EndedRetention <= 0 {
		return nil, nil
	}

	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := e.now().Add(-e.config.EndedRetention)
	var removed []string
	var errs []error
	for _, session := range sessions {
		if session.Status != types.StatusEnded || session.EndedAt == nil || session.EndedAt.After(cutoff) {
			continue
		}
		if err := e.store.DeleteSession(ctx, session.ID); err != nil {
			if errors.Is(err, interfaces.ErrSessionNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		e.logger.Info("purged ended session", zap.String("session_id", session.ID))
		removed = append(removed, session.ID)
	}
	return removed, errors.Join(errs...)
}
