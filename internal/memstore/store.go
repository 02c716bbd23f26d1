// Package memstore is an in-process SessionStore for demos, tests and
// single-instance deployments without a database file.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// record is one stored session guarded by its own mutex
type record struct {
	mu            sync.Mutex
	session       *types.Session
	registrations map[string]types.Registration
	participants  map[string]types.Participant
}

// Store implements interfaces.SessionStore in memory
// ARCHITECTURAL DISCOVERY: The outer RWMutex only guards the index. Mutations on a
// session take that session's mutex, so writers on different sessions never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	closed   bool
}

// New creates an empty store
func New() *Store {
	return &Store{sessions: make(map[string]*record)}
}

func (s *Store) lookup(sessionID string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, interfaces.ErrStoreClosed
	}
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return rec, nil
}

// CreateSession stores a copy of session
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := &record{
		session:       session.Clone(),
		registrations: make(map[string]types.Registration),
		participants:  make(map[string]types.Participant),
	}
	for _, r := range rec.session.RegisteredUsers {
		rec.registrations[r.UserID] = r
	}
	for _, p := range rec.session.Participants {
		rec.participants[p.UserID] = p
	}
	rec.session.RegisteredUsers = nil
	rec.session.Participants = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	if _, exists := s.sessions[session.ID]; exists {
		return interfaces.ErrSessionExists
	}
	s.sessions[session.ID] = rec
	return nil
}

// snapshot builds a caller-owned copy; rec.mu must be held
func (rec *record) snapshot() *types.Session {
	out := rec.session.Clone()

	out.RegisteredUsers = make([]types.Registration, 0, len(rec.registrations))
	for _, r := range rec.registrations {
		out.RegisteredUsers = append(out.RegisteredUsers, r)
	}
	sort.Slice(out.RegisteredUsers, func(i, j int) bool {
		a, b := out.RegisteredUsers[i], out.RegisteredUsers[j]
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.UserID < b.UserID
	})

	out.Participants = make([]types.Participant, 0, len(rec.participants))
	for _, p := range rec.participants {
		out.Participants = append(out.Participants, p)
	}
	sort.Slice(out.Participants, func(i, j int) bool {
		a, b := out.Participants[i], out.Participants[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return out
}

// GetSession returns a copy of the session
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), nil
}

// ListSessions returns copies of every session
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, interfaces.ErrStoreClosed
	}
	recs := make([]*record, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]*types.Session, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.snapshot())
		rec.mu.Unlock()
	}
	return out, nil
}

// DeleteSession removes a session and its records
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// UpdateStatus is a compare-and-set on the session status
func (s *Store) UpdateStatus(ctx context.Context, sessionID string, from, to types.SessionStatus, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != from {
		return false, nil
	}
	rec.session.Status = to
	if to == types.StatusEnded {
		ended := at
		rec.session.EndedAt = &ended
	}
	return true, nil
}

// UpsertRegistration adds a registration when the status guard passes
func (s *Store) UpsertRegistration(ctx context.Context, sessionID string, reg types.Registration, allowed ...types.SessionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !interfaces.StatusAllowed(rec.session.Status, allowed) {
		return fmt.Errorf("%w: session is %s", interfaces.ErrInvalidState, rec.session.Status)
	}
	if _, exists := rec.registrations[reg.UserID]; exists {
		return interfaces.ErrAlreadyRegistered
	}
	rec.registrations[reg.UserID] = reg
	return nil
}

// RemoveRegistration deletes a registration
func (s *Store) RemoveRegistration(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, exists := rec.registrations[userID]; !exists {
		return interfaces.ErrNotRegistered
	}
	delete(rec.registrations, userID)
	return nil
}

// UpsertParticipant adds a participant if absent when the status guard passes
func (s *Store) UpsertParticipant(ctx context.Context, sessionID string, p types.Participant, allowed ...types.SessionStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !interfaces.StatusAllowed(rec.session.Status, allowed) {
		return false, fmt.Errorf("%w: session is %s", interfaces.ErrInvalidState, rec.session.Status)
	}
	if _, exists := rec.participants[p.UserID]; exists {
		return false, nil
	}
	rec.participants[p.UserID] = p
	return true, nil
}

// RemoveParticipant deletes a participant
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, exists := rec.participants[userID]; !exists {
		return interfaces.ErrNotParticipant
	}
	delete(rec.participants, userID)
	return nil
}

// HealthCheck reports ErrStoreClosed after Close
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	return ctx.Err()
}

// Close drops all data
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = make(map[string]*record)
	return nil
}
