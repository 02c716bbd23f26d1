package database

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

// Functional Validation Tests - Config

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config == nil {
		t.Fatal("DefaultConfig should not return nil")
	}

	if config.DatabasePath != "./data/simplepaes.db" {
		t.Errorf("Expected DatabasePath './data/simplepaes.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime != time.Minute*10 {
		t.Errorf("Expected ConnMaxIdleTime 10 minutes, got %v", config.ConnMaxIdleTime)
	}
	if config.MigrationsPath != "" {
		t.Errorf("Expected embedded migrations by default, got %s", config.MigrationsPath)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "empty database path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "zero max connections", mutate: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "zero lifetime", mutate: func(c *Config) { c.ConnMaxLifetime = 0 }, wantErr: true},
		{name: "zero idle time", mutate: func(c *Config) { c.ConnMaxIdleTime = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	config := &Config{DatabasePath: "/tmp/x.db"}
	want := "/tmp/x.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	if got := config.DSN(); got != want {
		t.Errorf("DSN() = %s, want %s", got, want)
	}
}

// Functional Validation Tests - Migration System

func TestMigrationManager_ApplyEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db, "")

	applied, err := mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("ApplyMigrations should not fail: %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Errorf("Expected migration 001 to be applied, got %v", applied)
	}

	if err := mgr.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema should pass after migrations: %v", err)
	}

	// Second run is a no-op
	applied, err = mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("Re-running migrations should not fail: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Expected no migrations on second run, got %v", applied)
	}
}

func TestMigrationManager_ApplyFromDirectory(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	files := map[string]string{
		"002_second.up.sql":   `ALTER TABLE test_table ADD COLUMN label TEXT;`,
		"002_second.down.sql": `ALTER TABLE test_table DROP COLUMN label;`,
		"001_first.up.sql":    `CREATE TABLE test_table (id TEXT PRIMARY KEY);`,
		"001_first.down.sql":  `DROP TABLE test_table;`,
		"README.md":           `not a migration`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	mgr := NewMigrationManager(db, dir)
	applied, err := mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("ApplyMigrations should not fail: %v", err)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("Expected [001 002] in order, got %v", applied)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('test_table') WHERE name = 'label'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to inspect table: %v", err)
	}
	if count != 1 {
		t.Error("Second migration should have added the label column")
	}
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "001_broken.up.sql"), []byte(`CREATE TABLE ok (id TEXT); NOT VALID SQL;`), 0644); err != nil {
		t.Fatalf("Failed to write migration: %v", err)
	}

	mgr := NewMigrationManager(db, dir)
	if _, err := mgr.ApplyMigrations(); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	var tables int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ok'").Scan(&tables); err != nil {
		t.Fatalf("Failed to inspect sqlite_master: %v", err)
	}
	if tables != 0 {
		t.Error("Failed migration must be rolled back")
	}

	var version int
	var dirty bool
	if err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty); err != nil {
		t.Fatalf("Failed to query schema_migrations: %v", err)
	}
	if version != 1 || !dirty {
		t.Errorf("Expected version 1 marked dirty, got version %d dirty %v", version, dirty)
	}

	// A dirty database needs manual repair before migrating again
	if _, err := mgr.ApplyMigrations(); err == nil {
		t.Error("Expected ApplyMigrations to refuse a dirty database")
	}
}

func TestMigrationManager_EmbeddedDownMigrations(t *testing.T) {
	entries, err := fs.Glob(embeddedMigrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("Failed to list embedded migrations: %v", err)
	}

	ups, downs := 0, 0
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		default:
			t.Errorf("Embedded migration %s does not follow the up/down naming", name)
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("Expected matching up/down migrations, got %d up and %d down", ups, downs)
	}
}

func TestMigrationManager_ValidateSchemaEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db, "")

	if err := mgr.ValidateSchema(); err == nil {
		t.Error("ValidateSchema should fail on empty database")
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations failed: %v", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("Failed to read pragma: %v", err)
	}
	if fk != 1 {
		t.Error("Foreign keys should be enabled")
	}
}
