package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

// Functional Validation Tests - NewSession

func TestNewSession_Validate(t *testing.T) {
	start := time.Now().Add(time.Hour)
	tests := []struct {
		name    string
		input   NewSession
		wantErr error
	}{
		{
			name: "valid scheduled session",
			input: NewSession{
				Name:               "Ensayo PAES M1",
				Level:              "M1",
				Questions:          []Question{{ID: "q1", Prompt: "2+2"}},
				ScheduledStartTime: &start,
				DurationMinutes:    intPtr(45),
			},
		},
		{
			name:    "valid unscheduled session",
			input:   NewSession{Name: "Práctica libre", Level: "M2"},
			wantErr: nil,
		},
		{
			name:    "empty name",
			input:   NewSession{Level: "M1"},
			wantErr: ErrInvalidSessionName,
		},
		{
			name:    "name too long",
			input:   NewSession{Name: strings.Repeat("a", 201), Level: "M1"},
			wantErr: ErrInvalidSessionName,
		},
		{
			name:    "missing level",
			input:   NewSession{Name: "Ensayo"},
			wantErr: ErrInvalidLevel,
		},
		{
			name:    "question without prompt",
			input:   NewSession{Name: "Ensayo", Level: "M1", Questions: []Question{{ID: "q1"}}},
			wantErr: ErrInvalidQuestion,
		},
		{
			name:    "non-positive duration",
			input:   NewSession{Name: "Ensayo", Level: "M1", DurationMinutes: intPtr(0)},
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "zero start time",
			input:   NewSession{Name: "Ensayo", Level: "M1", ScheduledStartTime: &time.Time{}},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRef_Validate(t *testing.T) {
	if err := (UserRef{ID: "student_1", DisplayName: "Ana"}).Validate(); err != nil {
		t.Errorf("valid user should pass: %v", err)
	}
	if err := (UserRef{ID: ""}).Validate(); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("empty id: expected ErrInvalidUserID, got %v", err)
	}
	if err := (UserRef{ID: "bad user!"}).Validate(); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("invalid chars: expected ErrInvalidUserID, got %v", err)
	}
}

func TestIsValidUserID(t *testing.T) {
	valid := []string{
		"a", "student_1", "user-42", "auth0|abc123", "google-oauth2|1077",
		"ana@example.com", "émilie", "emoji🙂", strings.Repeat("x", 50), strings.Repeat("é", 50),
	}
	for _, id := range valid {
		if !IsValidUserID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	invalid := []string{
		"", "with space", "tab\there", "line\nbreak", "nul\x00", "\u200bzero-width", "no\u00a0break",
		strings.Repeat("x", 51),
	}
	for _, id := range invalid {
		if IsValidUserID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

// Functional Validation Tests - SessionStatus

func TestSessionStatus_Order(t *testing.T) {
	order := []SessionStatus{StatusScheduled, StatusLobby, StatusActive, StatusEnded}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if SessionStatus("paused").IsValid() {
		t.Error("unknown status should be invalid")
	}
	if !StatusLobby.Joinable() || !StatusActive.Joinable() {
		t.Error("lobby and active must be joinable")
	}
	if StatusScheduled.Joinable() || StatusEnded.Joinable() {
		t.Error("scheduled and ended must not be joinable")
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Lobby ")
	if err != nil || s != StatusLobby {
		t.Errorf("ParseStatus(Lobby) = %q, %v", s, err)
	}
	if _, err := ParseStatus("paused"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

// Technical Validation Tests - Session helpers

func TestSession_CloneIsDeep(t *testing.T) {
	start := time.Now()
	orig := &Session{
		ID:                 "s1",
		Questions:          []Question{{ID: "q1", Prompt: "p", Choices: []string{"a", "b"}}},
		ScheduledStartTime: &start,
		RegisteredUsers:    []Registration{{UserID: "u1"}},
		Participants:       []Participant{{UserID: "u2"}},
	}
	c := orig.Clone()
	c.Questions[0].Choices[0] = "changed"
	c.RegisteredUsers[0].UserID = "other"
	*c.ScheduledStartTime = start.Add(time.Hour)

	if orig.Questions[0].Choices[0] != "a" {
		t.Error("clone shares question choices")
	}
	if orig.RegisteredUsers[0].UserID != "u1" {
		t.Error("clone shares registrations")
	}
	if !orig.ScheduledStartTime.Equal(start) {
		t.Error("clone shares start time")
	}
	if !c.IsParticipant("u2") || c.IsRegistered("u1") {
		t.Error("membership helpers disagree with clone contents")
	}
}

func TestSession_JSONShape(t *testing.T) {
	s := &Session{ID: "s1", Name: "Ensayo", HostName: "Prof", Level: "M1", Status: StatusScheduled}
	data, err := json.Marshal(s.Clone())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "hostName", "level", "questions", "status", "registeredUsers", "participants"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %q in session JSON", key)
		}
	}
	if _, ok := raw["scheduledStartTime"]; ok {
		t.Error("unscheduled session should omit scheduledStartTime")
	}
	if regs, ok := raw["registeredUsers"].([]interface{}); !ok || len(regs) != 0 {
		t.Error("registeredUsers should encode as an empty array")
	}
}
