package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"simplepaes/internal/app"
	"simplepaes/internal/config"
	"simplepaes/internal/lifecycle"
	"simplepaes/internal/session"
	"simplepaes/pkg/types"
)

// demoSessions are offsets from now and levels of the seeded sessions
var demoSessions = []struct {
	name   string
	level  string
	offset time.Duration
}{
	{"Warm-up drill", "M1", 3 * time.Minute},
	{"Algebra practice exam", "M1", time.Hour},
	{"Geometry practice exam", "M2", 24 * time.Hour},
}

func newSeedCmd(configPath *string) *cobra.Command {
	var hostID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo sessions in the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.Driver != config.DriverSQLite {
				return fmt.Errorf("seed requires the sqlite driver, configured driver is %q", cfg.Database.Driver)
			}

			store, err := app.OpenSQLite(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := lifecycle.NewEngine(store, app.LifecycleConfig(cfg.Lifecycle), logger)
			manager := session.NewManager(store, engine, session.Options{}, logger)

			host := types.UserRef{ID: hostID, DisplayName: "Demo host"}
			now := time.Now().UTC().Truncate(time.Minute)
			for _, demo := range demoSessions {
				start := now.Add(demo.offset)
				created, err := manager.CreateSession(cmd.Context(), host, types.NewSession{
					Name:               demo.name,
					Level:              demo.level,
					ScheduledStartTime: &start,
					Questions: []types.Question{
						{ID: "q1", Prompt: "Warm-up question", Points: 1},
					},
				})
				if err != nil {
					return fmt.Errorf("seed %q: %w", demo.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", created.ID, created.Status, created.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hostID, "host", "demo-host", "user ID of the seeded sessions' host")
	return cmd
}
