package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

func newSession(id string, status types.SessionStatus) *types.Session {
	start := time.Now().Add(time.Hour)
	return &types.Session{
		ID:                 id,
		Name:               "Session " + id,
		HostID:             "host1",
		Level:              "M1",
		ScheduledStartTime: &start,
		Status:             status,
		CreatedAt:          time.Now(),
	}
}

func TestStore_InterfaceCompliance(t *testing.T) {
	var _ interfaces.SessionStore = New()
}

func TestStore_CreateGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateSession(ctx, newSession("s1", types.StatusScheduled)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateSession(ctx, newSession("s1", types.StatusScheduled)); !errors.Is(err, interfaces.ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Name != "Session s1" || got.Status != types.StatusScheduled {
		t.Errorf("Unexpected session: %+v", got)
	}
	if got.RegisteredUsers == nil || got.Participants == nil {
		t.Error("Nested lists should be non-nil")
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	original := newSession("s1", types.StatusScheduled)
	if err := store.CreateSession(ctx, original); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	original.Name = "mutated"

	got, _ := store.GetSession(ctx, "s1")
	got.Status = types.StatusEnded
	got.RegisteredUsers = append(got.RegisteredUsers, types.Registration{UserID: "ghost"})

	again, _ := store.GetSession(ctx, "s1")
	if again.Name != "Session s1" || again.Status != types.StatusScheduled || len(again.RegisteredUsers) != 0 {
		t.Errorf("Store state leaked through a returned pointer: %+v", again)
	}
}

func TestStore_RegistrationsOrdered(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.CreateSession(ctx, newSession("s1", types.StatusScheduled))

	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		reg := types.Registration{UserID: id, RegisteredAt: base.Add(time.Duration(2-i) * time.Second)}
		if err := store.UpsertRegistration(ctx, "s1", reg, types.StatusScheduled); err != nil {
			t.Fatalf("UpsertRegistration(%s): %v", id, err)
		}
	}

	got, _ := store.GetSession(ctx, "s1")
	order := []string{"b", "a", "c"}
	for i, want := range order {
		if got.RegisteredUsers[i].UserID != want {
			t.Fatalf("Expected order %v, got %+v", order, got.RegisteredUsers)
		}
	}
}

func TestStore_GuardsAndErrors(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.CreateSession(ctx, newSession("s1", types.StatusEnded))

	reg := types.Registration{UserID: "u1", RegisteredAt: time.Now()}
	if err := store.UpsertRegistration(ctx, "s1", reg, types.StatusScheduled); !errors.Is(err, interfaces.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
	// No guard means any status
	if err := store.UpsertRegistration(ctx, "s1", reg); err != nil {
		t.Errorf("Unguarded upsert failed: %v", err)
	}
	if err := store.UpsertRegistration(ctx, "s1", reg); !errors.Is(err, interfaces.ErrAlreadyRegistered) {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}

	p := types.Participant{UserID: "u1", JoinedAt: time.Now()}
	if _, err := store.UpsertParticipant(ctx, "s1", p, types.StatusLobby, types.StatusActive); !errors.Is(err, interfaces.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
	if err := store.RemoveParticipant(ctx, "s1", "u1"); !errors.Is(err, interfaces.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if err := store.RemoveRegistration(ctx, "s1", "u9"); !errors.Is(err, interfaces.ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
	if _, err := store.UpsertParticipant(ctx, "missing", p); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_UpsertParticipantIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.CreateSession(ctx, newSession("s1", types.StatusLobby))

	first := time.Now()
	created, err := store.UpsertParticipant(ctx, "s1", types.Participant{UserID: "u1", JoinedAt: first})
	if err != nil || !created {
		t.Fatalf("First join: created=%v err=%v", created, err)
	}
	created, err = store.UpsertParticipant(ctx, "s1", types.Participant{UserID: "u1", JoinedAt: first.Add(time.Minute)})
	if err != nil || created {
		t.Fatalf("Second join: created=%v err=%v", created, err)
	}

	got, _ := store.GetSession(ctx, "s1")
	if len(got.Participants) != 1 || !got.Participants[0].JoinedAt.Equal(first) {
		t.Errorf("Expected single participant with first join time, got %+v", got.Participants)
	}
}

func TestStore_UpdateStatus(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.CreateSession(ctx, newSession("s1", types.StatusActive))

	changed, err := store.UpdateStatus(ctx, "s1", types.StatusLobby, types.StatusActive, time.Now())
	if err != nil || changed {
		t.Fatalf("Stale CAS: changed=%v err=%v", changed, err)
	}

	at := time.Now()
	changed, err = store.UpdateStatus(ctx, "s1", types.StatusActive, types.StatusEnded, at)
	if err != nil || !changed {
		t.Fatalf("CAS: changed=%v err=%v", changed, err)
	}
	got, _ := store.GetSession(ctx, "s1")
	if got.Status != types.StatusEnded || got.EndedAt == nil || !got.EndedAt.Equal(at) {
		t.Errorf("Expected ended at %v, got %s %v", at, got.Status, got.EndedAt)
	}
}

func TestStore_ConcurrentJoinAndRegister(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.CreateSession(ctx, newSession("s1", types.StatusScheduled))
	_ = store.CreateSession(ctx, newSession("s2", types.StatusLobby))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		userID := string(rune('a'+i%26)) + string(rune('a'+i/26))
		go func() {
			defer wg.Done()
			_ = store.UpsertRegistration(ctx, "s1", types.Registration{UserID: userID, RegisteredAt: time.Now()})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.UpsertParticipant(ctx, "s2", types.Participant{UserID: userID, JoinedAt: time.Now()})
		}()
	}
	wg.Wait()

	s1, _ := store.GetSession(ctx, "s1")
	s2, _ := store.GetSession(ctx, "s2")
	if len(s1.RegisteredUsers) != 50 || len(s2.Participants) != 50 {
		t.Errorf("Expected 50 records each, got %d and %d", len(s1.RegisteredUsers), len(s2.Participants))
	}
}

func TestStore_Closed(t *testing.T) {
	store := New()
	ctx := context.Background()
	_ = store.Close()

	if err := store.CreateSession(ctx, newSession("s1", types.StatusScheduled)); !errors.Is(err, interfaces.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.ListSessions(ctx); !errors.Is(err, interfaces.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
	if err := store.HealthCheck(ctx); !errors.Is(err, interfaces.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
}
