package session

import (
	"context"

	"go.uber.org/zap"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// RegisterForSession enrolls user ahead of a scheduled session.
// FUNCTIONAL DISCOVERY: The scheduled check runs inside the store's atomic guard, so a
// registration racing the lobby transition either lands before it or is rejected.
func (m *Manager) RegisterForSession(ctx context.Context, sessionID string, user types.UserRef) interfaces.Result {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("user_id", user.ID)}

	if err := validateIDs(sessionID, user.ID); err != nil {
		return m.fail("register", err, msgRegistrationClosed, fields...)
	}

	reg := types.Registration{
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		RegisteredAt: m.now(),
	}
	if err := m.store.UpsertRegistration(ctx, sessionID, reg, types.StatusScheduled); err != nil {
		return m.fail("register", err, msgRegistrationClosed, fields...)
	}

	m.logger.Info("user registered", fields...)
	m.publish(ctx, types.EventRegistrationChanged, sessionID)
	return ok()
}

// UnregisterFromSession withdraws a registration. It is accepted in any status so a
// user can still withdraw after the lobby opened.
func (m *Manager) UnregisterFromSession(ctx context.Context, sessionID, userID string) interfaces.Result {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("user_id", userID)}

	if err := validateIDs(sessionID, userID); err != nil {
		return m.fail("unregister", err, msgRegistrationClosed, fields...)
	}
	if err := m.store.RemoveRegistration(ctx, sessionID, userID); err != nil {
		return m.fail("unregister", err, msgRegistrationClosed, fields...)
	}

	m.logger.Info("user unregistered", fields...)
	m.publish(ctx, types.EventRegistrationChanged, sessionID)
	return ok()
}
