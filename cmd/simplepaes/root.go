package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simplepaes/internal/config"
	"simplepaes/internal/logging"
)

// newRootCmd builds the command tree; serve is the default action
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "simplepaes",
		Short:         "SimplePAES live practice session server",
		Long:          `HTTP + WebSocket API for scheduled practice sessions. Commands: serve, migrate, seed, token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON config file (default $SIMPLEPAES_CONFIG_FILE)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newSeedCmd(&configPath))
	root.AddCommand(newTokenCmd(&configPath))
	return root
}

// loadConfig resolves configuration and the logger for a command
func loadConfig(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
