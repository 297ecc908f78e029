package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:          "support-router",
	Short:        "Anonymous support router: pairs requesters with responders by ticket",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(hashSecretCmd)
}

// bootstrap loads and validates configuration and builds the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	logger = logger.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))
	return cfg, logger, nil
}
