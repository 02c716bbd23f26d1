package types

import (
	"time"
)

// SessionStatus is the lifecycle state of a live practice session
type SessionStatus string

// ARCHITECTURAL DISCOVERY: Closed status set, ordered scheduled < lobby < active < ended.
// Time-driven transitions only ever move forward along this order.
const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLobby     SessionStatus = "lobby"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
)

// Rank returns the position of the status in the lifecycle order, -1 if unknown
func (s SessionStatus) Rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusLobby:
		return 1
	case StatusActive:
		return 2
	case StatusEnded:
		return 3
	default:
		return -1
	}
}

// IsValid reports whether s is one of the four known statuses
func (s SessionStatus) IsValid() bool {
	return s.Rank() >= 0
}

// Joinable reports whether participants may enter the room
func (s SessionStatus) Joinable() bool {
	return s == StatusLobby || s == StatusActive
}

// Question is one exercise of the session's fixed question set
type Question struct {
	ID      string   `json:"id" validate:"required"`
	Prompt  string   `json:"prompt" validate:"required"`
	Choices []string `json:"choices,omitempty"`
	Points  int      `json:"points,omitempty" validate:"gte=0"`
}

// Registration is a pre-session sign-up
type Registration struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Participant is a user currently present in the lobby or active room
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Session represents a scheduled or live group practice exam
// FUNCTIONAL DISCOVERY: RegisteredUsers and Participants are exposed as ordered lists
// for the UI; stores keep them keyed by user ID so each user appears at most once.
type Session struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	HostID             string         `json:"hostId"`
	HostName           string         `json:"hostName"`
	Level              string         `json:"level"`
	Questions          []Question     `json:"questions"`
	ScheduledStartTime *time.Time     `json:"scheduledStartTime,omitempty"`
	DurationMinutes    *int           `json:"durationMinutes,omitempty"`
	Status             SessionStatus  `json:"status"`
	RegisteredUsers    []Registration `json:"registeredUsers"`
	Participants       []Participant  `json:"participants"`
	CreatedAt          time.Time      `json:"createdAt"`
	EndedAt            *time.Time     `json:"endedAt,omitempty"`
}

// IsRegistered reports whether userID has a registration record
func (s *Session) IsRegistered(userID string) bool {
	for _, r := range s.RegisteredUsers {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// IsParticipant reports whether userID is present in the room
func (s *Session) IsParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out across goroutines
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Questions != nil {
		c.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			c.Questions[i] = q
			if q.Choices != nil {
				c.Questions[i].Choices = append([]string(nil), q.Choices...)
			}
		}
	}
	if s.ScheduledStartTime != nil {
		t := *s.ScheduledStartTime
		c.ScheduledStartTime = &t
	}
	if s.DurationMinutes != nil {
		d := *s.DurationMinutes
		c.DurationMinutes = &d
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.RegisteredUsers = append([]Registration{}, s.RegisteredUsers...)
	c.Participants = append([]Participant{}, s.Participants...)
	return &c
}

// UserRef identifies a caller as supplied by the identity provider
type UserRef struct {
	ID          string `json:"id" validate:"required,userid"`
	DisplayName string `json:"displayName,omitempty" validate:"max=100"`
}

// NewSession is the input for creating a session
type NewSession struct {
	Name               string     `json:"name" validate:"required,max=200"`
	Description        string     `json:"description,omitempty" validate:"max=2000"`
	Level              string     `json:"level" validate:"required,max=50"`
	Questions          []Question `json:"questions" validate:"omitempty,dive"`
	ScheduledStartTime *time.Time `json:"scheduledStartTime,omitempty"`
	DurationMinutes    *int       `json:"durationMinutes,omitempty" validate:"omitempty,gt=0,lte=1440"`
}

// Transition records a status change applied to a session
type Transition struct {
	SessionID string        `json:"sessionId"`
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	At        time.Time     `json:"at"`
}

// Event types pushed to live subscribers
const (
	EventSnapshot            = "snapshot"
	EventStatusChanged       = "status_changed"
	EventRegistrationChanged = "registration_changed"
	EventParticipantChanged  = "participant_changed"
	EventSessionCreated      = "session_created"
	EventSessionRemoved      = "session_removed"
)

// Event is a session change notification
// ARCHITECTURAL DISCOVERY: Origin carries the publishing instance ID so events relayed
// through a shared bus are not fanned out twice on the instance that produced them.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Session   *Session  `json:"session,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
