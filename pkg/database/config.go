package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config tunes the SQLite session store
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	// MigrationsPath overrides the embedded migrations when set
	MigrationsPath string `json:"migrations_path"`
}

// DefaultConfig returns settings sized for a few live sessions of a class each
// FUNCTIONAL DISCOVERY: Reads share the pool while writes go through one goroutine,
// so 10 connections cover the 3 second polling of a few hundred students.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/simplepaes.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Validate rejects settings sql.DB would misinterpret
func (c *Config) Validate() error {
	switch {
	case c.DatabasePath == "":
		return errors.New("database path cannot be empty")
	case c.MaxConnections <= 0:
		return errors.New("max connections must be greater than 0")
	case c.ConnMaxLifetime <= 0:
		return errors.New("connection max lifetime must be greater than 0")
	case c.ConnMaxIdleTime <= 0:
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// DSN returns the go-sqlite3 connection string with busy timeout, WAL and foreign keys
func (c *Config) DSN() string {
	return c.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// Pragmas applied once after opening; the DSN repeats the per-connection ones
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;          -- Write-Ahead Logging for better concurrency
	PRAGMA synchronous = NORMAL;        -- Balance between safety and performance
	PRAGMA cache_size = -64000;         -- 64MB cache (negative = KB)
	PRAGMA temp_store = MEMORY;         -- Use memory for temporary tables
	PRAGMA foreign_keys = ON;           -- Enforce foreign key constraints
	PRAGMA busy_timeout = 5000;         -- 5 second timeout for locked database
`

// ApplySQLiteOptimizations applies performance pragmas to the database connection
func ApplySQLiteOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
