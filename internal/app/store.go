package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"simplepaes/internal/config"
	"simplepaes/internal/database"
	"simplepaes/internal/lifecycle"
	"simplepaes/internal/memstore"
	pkgdatabase "simplepaes/pkg/database"
	"simplepaes/pkg/interfaces"
)

// SQLiteConfig derives the pkg/database settings from the application config
func SQLiteConfig(cfg *config.DatabaseConfig) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	if cfg.Timeout > 0 {
		dbConfig.ConnMaxLifetime = cfg.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Timeout / 3
	}
	return dbConfig
}

// LifecycleConfig converts the minute based settings into engine durations
func LifecycleConfig(cfg *config.LifecycleConfig) lifecycle.Config {
	return lifecycle.Config{
		LobbyOpenOffset: time.Duration(cfg.LobbyOpenOffsetMinutes) * time.Minute,
		PlannedDuration: time.Duration(cfg.PlannedDurationMinutes) * time.Minute,
		EndedRetention:  cfg.EndedRetention,
	}
}

// OpenSQLite opens the database file, creating its directory, and brings the schema up to date
func OpenSQLite(cfg *config.DatabaseConfig, logger *zap.Logger) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := SQLiteConfig(cfg)
	manager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	applied, err := pkgdatabase.NewMigrationManager(manager.GetDB(), dbConfig.MigrationsPath).ApplyMigrations()
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("database migrations applied", zap.Uints("versions", applied))
	}
	return manager, nil
}

// OpenStore returns the session store selected by cfg.Driver
func OpenStore(cfg *config.DatabaseConfig, logger *zap.Logger) (interfaces.SessionStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory session store")
		return memstore.New(), nil
	case config.DriverSQLite:
		logger.Info("using sqlite session store", zap.String("path", cfg.Path))
		return OpenSQLite(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
