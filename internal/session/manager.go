package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"simplepaes/internal/lifecycle"
	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Options are the policy switches of the manager
type Options struct {
	// IncludeEnded lists ended sessions in GetAllAvailableSessions
	IncludeEnded bool
	// RequireRegistration rejects joins from users who did not register
	RequireRegistration bool
}

// Manager implements interfaces.SessionService on top of a SessionStore
// ARCHITECTURAL DISCOVERY: The manager holds no session state of its own. Every guard
// is evaluated by the store inside its atomic section, the manager only translates
// outcomes into Result objects and events.
type Manager struct {
	store     interfaces.SessionStore
	engine    *lifecycle.Engine
	publisher interfaces.EventPublisher
	logger    *zap.Logger
	options   Options
	now       func() time.Time
}

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore, engine *lifecycle.Engine, options Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		engine:    engine,
		publisher: interfaces.NopPublisher{},
		logger:    logger.Named("session"),
		options:   options,
		now:       time.Now,
	}
}

// SetPublisher wires the event sink; the hub is created after the manager
func (m *Manager) SetPublisher(p interfaces.EventPublisher) {
	if p == nil {
		p = interfaces.NopPublisher{}
	}
	m.publisher = p
}

// SetClock replaces the time source used for record timestamps
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// publish sends an event carrying the current session snapshot
func (m *Manager) publish(ctx context.Context, eventType, sessionID string) {
	event := types.Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: m.now(),
	}
	if session, err := m.store.GetSession(ctx, sessionID); err == nil {
		event.Session = session
	}
	m.publisher.Publish(event)
}

// fail converts err into a failed Result. invalidState is the message shown for
// an invalid_state outcome of the calling operation.
func (m *Manager) fail(op string, err error, invalidState string, fields ...zap.Field) interfaces.Result {
	code := CodeFor(err)
	result := interfaces.Result{Success: false, Code: code}

	switch code {
	case interfaces.CodeNotFound:
		result.Error = msgNotFound
	case interfaces.CodeInvalidState:
		result.Error = invalidState
	case interfaces.CodeAlreadyRegistered:
		result.Error = msgAlreadyRegistered
	case interfaces.CodeNotRegistered:
		result.Error = msgNotRegistered
	case interfaces.CodeNotParticipant:
		result.Error = msgNotParticipant
	case interfaces.CodeForbidden:
		result.Error = msgForbidden
	case interfaces.CodeValidation:
		result.Error = err.Error()
	default:
		m.logger.Error(op+" failed", append(fields, zap.Error(err))...)
		result.Error = msgInternal
		return result
	}

	m.logger.Debug(op+" rejected", append(fields, zap.String("code", code))...)
	return result
}

func ok() interfaces.Result {
	return interfaces.Result{Success: true}
}

// validateIDs checks the session and user identifiers every action needs
func validateIDs(sessionID, userID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session ID is required", ErrValidation)
	}
	if !types.IsValidUserID(userID) {
		return types.ErrInvalidUserID
	}
	return nil
}

// CreateSession validates input and stores a new session hosted by host
func (m *Manager) CreateSession(ctx context.Context, host types.UserRef, input types.NewSession) (*types.Session, error) {
	if err := host.Validate(); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	status := types.StatusScheduled
	if input.ScheduledStartTime == nil {
		// Without a start time the host opens and closes the room manually
		status = types.StatusLobby
	}

	questions := input.Questions
	if questions == nil {
		questions = []types.Question{}
	}

	session := &types.Session{
		ID:                 uuid.New().String(),
		Name:               strings.TrimSpace(input.Name),
		Description:        input.Description,
		HostID:             host.ID,
		HostName:           host.DisplayName,
		Level:              input.Level,
		Questions:          questions,
		ScheduledStartTime: input.ScheduledStartTime,
		DurationMinutes:    input.DurationMinutes,
		Status:             status,
		RegisteredUsers:    []types.Registration{},
		Participants:       []types.Participant{},
		CreatedAt:          now,
	}

	// A start time already in the past lands directly in its current window
	if m.engine != nil {
		if next, err := lifecycle.ComputeStatus(session, now, m.engine.Config()); err == nil {
			session.Status = next
			if next == types.StatusEnded {
				session.EndedAt = &now
			}
		}
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("host_id", host.ID),
		zap.String("status", string(session.Status)),
	)
	m.publisher.Publish(types.Event{
		Type:      types.EventSessionCreated,
		SessionID: session.ID,
		Session:   session.Clone(),
		Timestamp: now,
	})
	return session, nil
}

// SetStatus lets the host move a session forward by hand
func (m *Manager) SetStatus(ctx context.Context, sessionID string, caller types.UserRef, status types.SessionStatus) interfaces.Result {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("user_id", caller.ID)}
	invalid := fmt.Sprintf("The session cannot move to %s", status)

	if err := validateIDs(sessionID, caller.ID); err != nil {
		return m.fail("set status", err, invalid, fields...)
	}
	if !status.IsValid() {
		return m.fail("set status", types.ErrInvalidStatus, invalid, fields...)
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return m.fail("set status", err, invalid, fields...)
	}
	if session.HostID != caller.ID {
		return m.fail("set status", ErrForbidden, invalid, fields...)
	}
	if session.Status == status {
		return ok()
	}
	if status.Rank() < session.Status.Rank() {
		return m.fail("set status", ErrBackwardTransition, invalid, fields...)
	}

	changed, err := m.store.UpdateStatus(ctx, sessionID, session.Status, status, m.now())
	if err != nil {
		return m.fail("set status", err, invalid, fields...)
	}
	if !changed {
		// Lost the race against the engine or another host request
		return m.fail("set status", interfaces.ErrInvalidState, "The session status changed, please refresh", fields...)
	}

	m.logger.Info("session status set by host", append(fields,
		zap.String("from", string(session.Status)),
		zap.String("to", string(status)),
	)...)
	m.publish(ctx, types.EventStatusChanged, sessionID)
	return ok()
}

// UpdateSessionStatuses applies time-driven transitions and publishes them
func (m *Manager) UpdateSessionStatuses(ctx context.Context) ([]types.Transition, error) {
	transitions, err := m.engine.UpdateSessionStatuses(ctx)
	for _, t := range transitions {
		m.publish(ctx, types.EventStatusChanged, t.SessionID)
	}
	return transitions, err
}

// PurgeEnded removes expired ended sessions and announces their removal
func (m *Manager) PurgeEnded(ctx context.Context) ([]string, error) {
	removed, err := m.engine.PurgeEnded(ctx)
	for _, id := range removed {
		m.publisher.Publish(types.Event{
			Type:      types.EventSessionRemoved,
			SessionID: id,
			Timestamp: m.now(),
		})
	}
	return removed, err
}

// HealthCheck reports the store health
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}
