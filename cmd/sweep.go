package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close waiting sessions nobody claimed in time and exit",
	RunE:  runSweep,
}

var sweepOlderThan time.Duration

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "close waiting sessions created before now minus this duration (defaults to ROUTER_SWEEP_WAITING_AFTER)")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	age := sweepOlderThan
	if age <= 0 {
		age = cfg.Router.SweepWaitingAfter
	}
	if age <= 0 {
		return fmt.Errorf("sweep: set --older-than or ROUTER_SWEEP_WAITING_AFTER")
	}

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	expired := app.router.ExpireWaiting(ctx, age)
	app.drainDeliveries(ctx)
	if err := app.persister.Flush(ctx); err != nil {
		logger.Warn("snapshot flush after sweep failed", zap.Error(err))
	}
	logger.Info("sweep finished", zap.Int("expired", expired), zap.Duration("older_than", age))
	return nil
}
