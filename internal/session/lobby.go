package session

import (
	"context"

	"go.uber.org/zap"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// JoinSession admits user into the lobby or the active room. Joining again is a
// successful no-op that keeps the original record.
func (m *Manager) JoinSession(ctx context.Context, sessionID string, user types.UserRef) interfaces.Result {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("user_id", user.ID)}

	if err := validateIDs(sessionID, user.ID); err != nil {
		return m.fail("join", err, msgNotJoinable, fields...)
	}

	if m.options.RequireRegistration {
		session, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return m.fail("join", err, msgNotJoinable, fields...)
		}
		if !session.Status.Joinable() {
			return m.fail("join", interfaces.ErrInvalidState, msgNotJoinable, fields...)
		}
		// registrations only grow while scheduled, so this read is final for a joinable session
		if !session.IsRegistered(user.ID) && !session.IsParticipant(user.ID) {
			return m.fail("join", interfaces.ErrNotRegistered, msgNotJoinable, fields...)
		}
	}

	participant := types.Participant{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		JoinedAt:    m.now(),
	}
	created, err := m.store.UpsertParticipant(ctx, sessionID, participant, types.StatusLobby, types.StatusActive)
	if err != nil {
		return m.fail("join", err, msgNotJoinable, fields...)
	}

	if created {
		m.logger.Info("user joined", fields...)
		m.publish(ctx, types.EventParticipantChanged, sessionID)
	}
	return ok()
}

// LeaveSession removes user from the room
func (m *Manager) LeaveSession(ctx context.Context, sessionID, userID string) interfaces.Result {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("user_id", userID)}

	if err := validateIDs(sessionID, userID); err != nil {
		return m.fail("leave", err, msgNotJoinable, fields...)
	}
	if err := m.store.RemoveParticipant(ctx, sessionID, userID); err != nil {
		return m.fail("leave", err, msgNotJoinable, fields...)
	}

	m.logger.Info("user left", fields...)
	m.publish(ctx, types.EventParticipantChanged, sessionID)
	return ok()
}
