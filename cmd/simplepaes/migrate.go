package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simplepaes/internal/app"
	"simplepaes/internal/config"
	pkgdatabase "simplepaes/pkg/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite migrations and validate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.Driver != config.DriverSQLite {
				return fmt.Errorf("migrate requires the sqlite driver, configured driver is %q", cfg.Database.Driver)
			}

			// OpenSQLite applies pending migrations
			manager, err := app.OpenSQLite(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer manager.Close()

			if !validate {
				logger.Info("migrations applied", zap.String("path", cfg.Database.Path))
				fmt.Fprintf(cmd.OutOrStdout(), "migrations applied: %s\n", cfg.Database.Path)
				return nil
			}

			db := manager.GetDB()
			if err := pkgdatabase.NewMigrationManager(db, "").ValidateSchema(); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}
			if err := pkgdatabase.NewSchemaValidator(db).ValidateConstraints(); err != nil {
				return fmt.Errorf("schema constraints: %w", err)
			}

			logger.Info("schema is up to date", zap.String("path", cfg.Database.Path))
			fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date: %s\n", cfg.Database.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", true, "check tables, columns, indexes and constraints after migrating")
	return cmd
}
