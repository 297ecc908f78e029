package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Storage.Driver == "memory" {
		logger.Info("memory storage has no schema; nothing to migrate")
		return nil
	}

	store, err := openStorage(cmd.Context(), cfg, logger, true)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer store.close()

	logger.Info("migrate up: ok", zap.String("driver", cfg.Storage.Driver))
	return nil
}
