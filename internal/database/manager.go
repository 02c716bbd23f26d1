package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "simplepaes/pkg/database"
	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Manager implements interfaces.SessionStore on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
	writeTimeout time.Duration
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new database manager. Migrations are applied by the caller
// through GetDB so the schema lifecycle stays with pkg/database.
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.Named("store"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	// and serializes every read-modify-write against the same session
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if isBusy(err) {
				m.logger.Warn("database busy, retrying write", zap.Duration("delay", m.retryDelay), zap.Error(err))
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error("database write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database write loop shutting down")
			return
		}
	}
}

// isBusy reports whether err is a transient SQLite lock error worth one retry.
// Domain errors are never retried.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// isPrimaryKeyViolation reports whether err is a duplicate-key insert
func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.writeTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return fmt.Errorf("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		// The loop may have exited with the operation still buffered
		select {
		case err := <-result:
			return err
		default:
			return interfaces.ErrStoreClosed
		}
	}
}

// withTx runs fn inside a transaction on the writer goroutine
func (m *Manager) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// lockStatus reads the session status inside tx, mapping a missing row to ErrSessionNotFound
func lockStatus(ctx context.Context, tx *sql.Tx, sessionID string) (types.SessionStatus, error) {
	var status types.SessionStatus
	err := tx.QueryRowContext(ctx, "SELECT status FROM sessions WHERE id = ?", sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", interfaces.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session status: %w", err)
	}
	return status, nil
}

// CreateSession inserts a session together with any registrations and participants it carries
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	// TECHNICAL DISCOVERY: Questions serialize to JSON text, they are only ever read whole
	questionsJSON, err := json.Marshal(questionsOrEmpty(session.Questions))
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	return m.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, name, description, host_id, host_name, level, questions,
				scheduled_start_time, duration_minutes, status, created_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.Name,
			session.Description,
			session.HostID,
			session.HostName,
			session.Level,
			string(questionsJSON),
			nullTime(session.ScheduledStartTime),
			nullInt(session.DurationMinutes),
			session.Status,
			session.CreatedAt.UTC(),
			nullTime(session.EndedAt),
		)
		if err != nil {
			if isPrimaryKeyViolation(err) {
				return interfaces.ErrSessionExists
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}

		for _, reg := range session.RegisteredUsers {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO registrations (session_id, user_id, display_name, registered_at) VALUES (?, ?, ?, ?)",
				session.ID, reg.UserID, reg.DisplayName, reg.RegisteredAt.UTC(),
			); err != nil {
				return fmt.Errorf("failed to insert registration: %w", err)
			}
		}
		for _, p := range session.Participants {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO participants (session_id, user_id, display_name, joined_at) VALUES (?, ?, ?, ?)",
				session.ID, p.UserID, p.DisplayName, p.JoinedAt.UTC(),
			); err != nil {
				return fmt.Errorf("failed to insert participant: %w", err)
			}
		}
		return nil
	})
}

const sessionColumns = `id, name, description, host_id, host_name, level, questions,
	scheduled_start_time, duration_minutes, status, created_at, ended_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var questionsJSON string
	var start, ended sql.NullTime
	var duration sql.NullInt64

	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Description,
		&session.HostID,
		&session.HostName,
		&session.Level,
		&questionsJSON,
		&start,
		&duration,
		&session.Status,
		&session.CreatedAt,
		&ended,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(questionsJSON), &session.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	if start.Valid {
		t := start.Time
		session.ScheduledStartTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		session.DurationMinutes = &d
	}
	if ended.Valid {
		t := ended.Time
		session.EndedAt = &t
	}
	session.Questions = questionsOrEmpty(session.Questions)
	session.RegisteredUsers = []types.Registration{}
	session.Participants = []types.Participant{}
	return &session, nil
}

// GetSession retrieves a session with its registrations and participants
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	byID := map[string]*types.Session{session.ID: session}
	if err := m.loadRegistrations(ctx, byID, "WHERE session_id = ?", sessionID); err != nil {
		return nil, err
	}
	if err := m.loadParticipants(ctx, byID, "WHERE session_id = ?", sessionID); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns every session; nested records are loaded in two extra queries
func (m *Manager) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*types.Session{}
	byID := make(map[string]*types.Session)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
		byID[session.ID] = session
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	_ = rows.Close()

	if len(sessions) == 0 {
		return sessions, nil
	}
	if err := m.loadRegistrations(ctx, byID, ""); err != nil {
		return nil, err
	}
	if err := m.loadParticipants(ctx, byID, ""); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (m *Manager) loadRegistrations(ctx context.Context, byID map[string]*types.Session, where string, args ...interface{}) error {
	rows, err := m.db.QueryContext(ctx,
		"SELECT session_id, user_id, display_name, registered_at FROM registrations "+where+
			" ORDER BY registered_at, user_id", args...)
	if err != nil {
		return fmt.Errorf("failed to query registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sessionID string
		var reg types.Registration
		if err := rows.Scan(&sessionID, &reg.UserID, &reg.DisplayName, &reg.RegisteredAt); err != nil {
			return fmt.Errorf("failed to scan registration row: %w", err)
		}
		if s, ok := byID[sessionID]; ok {
			s.RegisteredUsers = append(s.RegisteredUsers, reg)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating registration rows: %w", err)
	}

	for _, s := range byID {
		sort.SliceStable(s.RegisteredUsers, func(i, j int) bool {
			a, b := s.RegisteredUsers[i], s.RegisteredUsers[j]
			if !a.RegisteredAt.Equal(b.RegisteredAt) {
				return a.RegisteredAt.Before(b.RegisteredAt)
			}
			return a.UserID < b.UserID
		})
	}
	return nil
}

func (m *Manager) loadParticipants(ctx context.Context, byID map[string]*types.Session, where string, args ...interface{}) error {
	rows, err := m.db.QueryContext(ctx,
		"SELECT session_id, user_id, display_name, joined_at FROM participants "+where+
			" ORDER BY joined_at, user_id", args...)
	if err != nil {
		return fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sessionID string
		var p types.Participant
		if err := rows.Scan(&sessionID, &p.UserID, &p.DisplayName, &p.JoinedAt); err != nil {
			return fmt.Errorf("failed to scan participant row: %w", err)
		}
		if s, ok := byID[sessionID]; ok {
			s.Participants = append(s.Participants, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating participant rows: %w", err)
	}

	for _, s := range byID {
		sort.SliceStable(s.Participants, func(i, j int) bool {
			a, b := s.Participants[i], s.Participants[j]
			if !a.JoinedAt.Equal(b.JoinedAt) {
				return a.JoinedAt.Before(b.JoinedAt)
			}
			return a.UserID < b.UserID
		})
	}
	return nil
}

// DeleteSession removes a session; registrations and participants cascade
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// UpdateStatus is a compare-and-set on the status column
func (m *Manager) UpdateStatus(ctx context.Context, sessionID string, from, to types.SessionStatus, at time.Time) (bool, error) {
	var changed bool
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		var endedAt interface{}
		if to == types.StatusEnded {
			endedAt = at.UTC()
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, ended_at = COALESCE(?, ended_at)
			WHERE id = ? AND status = ?
		`, to, endedAt, sessionID, from)
		if err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Distinguish a lost race from a missing session
			if _, err := lockStatus(ctx, tx, sessionID); err != nil {
				return err
			}
			return nil
		}
		changed = true
		return nil
	})
	return changed, err
}

// UpsertRegistration adds a registration if the session is in an allowed status
func (m *Manager) UpsertRegistration(ctx context.Context, sessionID string, reg types.Registration, allowed ...types.SessionStatus) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		status, err := lockStatus(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !interfaces.StatusAllowed(status, allowed) {
			return fmt.Errorf("%w: session is %s", interfaces.ErrInvalidState, status)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO registrations (session_id, user_id, display_name, registered_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, user_id) DO NOTHING
		`, sessionID, reg.UserID, reg.DisplayName, reg.RegisteredAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert registration: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return interfaces.ErrAlreadyRegistered
		}
		return nil
	})
}

// RemoveRegistration deletes the user's registration
func (m *Manager) RemoveRegistration(ctx context.Context, sessionID, userID string) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockStatus(ctx, tx, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM registrations WHERE session_id = ? AND user_id = ?", sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete registration: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return interfaces.ErrNotRegistered
		}
		return nil
	})
}

// UpsertParticipant adds a participant if absent and the session is in an allowed status
func (m *Manager) UpsertParticipant(ctx context.Context, sessionID string, p types.Participant, allowed ...types.SessionStatus) (bool, error) {
	var created bool
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		status, err := lockStatus(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !interfaces.StatusAllowed(status, allowed) {
			return fmt.Errorf("%w: session is %s", interfaces.ErrInvalidState, status)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO participants (session_id, user_id, display_name, joined_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, user_id) DO NOTHING
		`, sessionID, p.UserID, p.DisplayName, p.JoinedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	return created, err
}

// RemoveParticipant deletes the user's participant record
func (m *Manager) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockStatus(ctx, tx, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE session_id = ? AND user_id = ?", sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete participant: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return interfaces.ErrNotParticipant
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrStoreClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func questionsOrEmpty(q []types.Question) []types.Question {
	if q == nil {
		return []types.Question{}
	}
	return q
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
