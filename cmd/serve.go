package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/support-router/internal/api/http"
	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE:  runServe,
}

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if !cfg.Auth.Enabled() {
		logger.Warn("AUTH_CLIENT_SECRET_HASH not set; the adapter API is unauthenticated")
	}

	httpApp := httptransport.NewApp(cfg.App.Name, logger, app.metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(httpApp, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Checks:      app.store.checks,
			Metrics:     app.metrics,
			Sessions:    app.sessions,
			Snapshots:   app.persister,
		}),
		Auth:           handlers.NewAuthHandler(app.auth),
		Events:         handlers.NewEventsHandler(app.router),
		Sessions:       handlers.NewSessionsHandler(app.router, cfg.Router.SweepWaitingAfter),
		AuthMiddleware: auth.NewAuthMiddleware(app.tokens, cfg.Auth.Enabled()),
	})

	// workers outlive the signal until the HTTP server has drained
	workCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	g, gctx := errgroup.WithContext(workCtx)

	g.Go(func() error { return app.persister.Run(gctx) })
	g.Go(func() error { return app.deliveryPool.Run(gctx) })
	g.Go(func() error { return app.selfHelpPool.Run(gctx) })
	g.Go(func() error { return app.sweeper.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := httpApp.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
		case <-gctx.Done():
		}
		err := httpApp.ShutdownWithTimeout(shutdownTimeout)
		stopWorkers()
		return err
	})

	return g.Wait()
}
