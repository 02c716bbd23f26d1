package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationManager handles database migrations
// FUNCTIONAL DISCOVERY: Manager pattern encapsulates migration state and operations
// enabling safe schema evolution across development and production environments
type MigrationManager struct {
	db     *sql.DB
	source fs.FS
}

// NewMigrationManager creates a new migration manager. An empty migrationsPath uses
// the migrations compiled into the binary. Files follow the golang-migrate naming
// scheme: 001_name.up.sql and 001_name.down.sql.
func NewMigrationManager(db *sql.DB, migrationsPath string) *MigrationManager {
	var fsys fs.FS
	if migrationsPath != "" {
		fsys = os.DirFS(migrationsPath)
	} else {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			// embed paths are fixed at compile time
			panic(err)
		}
		fsys = sub
	}
	return &MigrationManager{db: db, source: fsys}
}

// ApplyMigrations applies all pending up migrations, returning the versions applied
// in order. The sqlite3 driver runs each migration in its own transaction; a failed
// one leaves the schema_migrations row marked dirty and later runs refuse to proceed.
func (m *MigrationManager) ApplyMigrations() ([]uint, error) {
	src, err := iofs.New(m.source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	defer func() { _ = src.Close() }()

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	// TECHNICAL DISCOVERY: migrate.Close closes the database driver, which closes
	// the shared *sql.DB, so the instance is dropped without closing it
	mig, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	before, err := currentVersion(mig)
	if err != nil {
		return nil, err
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, err := currentVersion(mig)
	if err != nil {
		return nil, err
	}
	return appliedBetween(src, before, after)
}

// ValidateSchema ensures database matches expected structure
func (m *MigrationManager) ValidateSchema() error {
	v := NewSchemaValidator(m.db)
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// currentVersion returns the applied version, 0 when nothing has run yet
func currentVersion(mig *migrate.Migrate) (uint, error) {
	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return 0, migrate.ErrDirty{Version: int(version)}
	}
	return version, nil
}

// appliedBetween lists the source versions in (from, to]
func appliedBetween(src source.Driver, from, to uint) ([]uint, error) {
	var versions []uint
	if to <= from {
		return versions, nil
	}

	version, err := src.First()
	for err == nil && version <= to {
		if version > from {
			versions = append(versions, version)
		}
		version, err = src.Next(version)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	return versions, nil
}
