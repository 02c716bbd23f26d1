package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions":          "Session data storage",
		"registrations":     "Pre-session sign-ups",
		"participants":      "Lobby and room presence",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	sessionColumns := map[string]string{
		"id":                   "TEXT",
		"name":                 "TEXT",
		"description":          "TEXT",
		"host_id":              "TEXT",
		"host_name":            "TEXT",
		"level":                "TEXT",
		"questions":            "TEXT",
		"scheduled_start_time": "DATETIME",
		"duration_minutes":     "INTEGER",
		"status":               "TEXT",
		"created_at":           "DATETIME",
		"ended_at":             "DATETIME",
	}
	if err := v.validateColumns("sessions", sessionColumns); err != nil {
		return fmt.Errorf("sessions table structure invalid: %w", err)
	}

	registrationColumns := map[string]string{
		"session_id":    "TEXT",
		"user_id":       "TEXT",
		"display_name":  "TEXT",
		"registered_at": "DATETIME",
	}
	if err := v.validateColumns("registrations", registrationColumns); err != nil {
		return fmt.Errorf("registrations table structure invalid: %w", err)
	}

	participantColumns := map[string]string{
		"session_id":   "TEXT",
		"user_id":      "TEXT",
		"display_name": "TEXT",
		"joined_at":    "DATETIME",
	}
	if err := v.validateColumns("participants", participantColumns); err != nil {
		return fmt.Errorf("participants table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_status":          "Session status lookups",
		"idx_sessions_scheduled_start": "Schedule ordering",
		"idx_registrations_user":       "Registrations by user",
		"idx_participants_user":        "Participation by user",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced.
// It runs inside a transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// registrations.session_id -> sessions.id
	_, err = tx.Exec(`
		INSERT INTO registrations (session_id, user_id, registered_at)
		VALUES ('nonexistent', 'user1', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("foreign key constraint not enforced: registrations.session_id")
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (id, name, host_id, level, status)
		VALUES ('constraint-check', 'Check', 'host1', 'M1', 'paused')
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: session status")
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (id, name, host_id, level)
		VALUES ('constraint-check', 'Check', 'host1', 'M1')
	`)
	if err != nil {
		return fmt.Errorf("failed to create constraint check session: %w", err)
	}
	insertReg := `
		INSERT INTO registrations (session_id, user_id, registered_at)
		VALUES ('constraint-check', 'user1', CURRENT_TIMESTAMP)
	`
	if _, err := tx.Exec(insertReg); err != nil {
		return fmt.Errorf("failed to create constraint check registration: %w", err)
	}
	if _, err := tx.Exec(insertReg); err == nil {
		return fmt.Errorf("primary key not enforced: duplicate registration")
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
