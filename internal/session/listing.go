package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"simplepaes/pkg/types"
)

// Filter narrows ListSessions
type Filter struct {
	// Level matches case-insensitively; empty matches all
	Level string
	// IncludeEnded overrides the manager option when set
	IncludeEnded *bool
}

// GetAllAvailableSessions returns the sessions the UI shows, ended ones hidden
// unless the manager was configured to include them
func (m *Manager) GetAllAvailableSessions(ctx context.Context) ([]*types.Session, error) {
	return m.ListSessions(ctx, Filter{})
}

// ListSessions returns sessions ordered by start time, unscheduled ones last, then by name
func (m *Manager) ListSessions(ctx context.Context, filter Filter) ([]*types.Session, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	includeEnded := m.options.IncludeEnded
	if filter.IncludeEnded != nil {
		includeEnded = *filter.IncludeEnded
	}

	out := make([]*types.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == types.StatusEnded && !includeEnded {
			continue
		}
		if filter.Level != "" && !strings.EqualFold(s.Level, filter.Level) {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.ScheduledStartTime == nil && b.ScheduledStartTime != nil:
			return false
		case a.ScheduledStartTime != nil && b.ScheduledStartTime == nil:
			return true
		case a.ScheduledStartTime != nil && !a.ScheduledStartTime.Equal(*b.ScheduledStartTime):
			return a.ScheduledStartTime.Before(*b.ScheduledStartTime)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

// GetSession returns one session regardless of status
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}
