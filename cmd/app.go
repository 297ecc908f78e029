package cmd

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/gateway"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/persistence"
	"github.com/spec-kit/support-router/internal/repository"
	"github.com/spec-kit/support-router/internal/selfhelp"
	"github.com/spec-kit/support-router/internal/service"
	"github.com/spec-kit/support-router/internal/worker"
)

// storage holds the session table backend selected by STORAGE_DRIVER.
type storage struct {
	repo    repository.SessionRepository
	checks  map[string]handlers.Pinger
	closers []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, forceMigrations bool) (*storage, error) {
	s := &storage{checks: map[string]handlers.Pinger{}}

	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		if forceMigrations || cfg.Postgres.RunMigrations {
			db := pg.SQLDB()
			err := persistence.RunMigrations(ctx, db, goose.DialectPostgres, logger)
			if db != nil {
				_ = db.Close()
			}
			if err != nil {
				s.close()
				return nil, err
			}
		}
		s.repo = repository.NewSessionRepository(pg.PoolHandle())
		s.checks["postgres"] = pg
	case "sqlite":
		sq, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, sq.Close)
		if forceMigrations || cfg.SQLite.RunMigrations {
			if err := persistence.RunMigrations(ctx, sq.DB, goose.DialectSQLite3, logger); err != nil {
				s.close()
				return nil, err
			}
		}
		s.repo = repository.NewSQLiteSessionRepository(sq.DB)
		s.checks["sqlite"] = sq
	case "memory":
		logger.Warn("memory storage selected; sessions do not survive restarts")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return s, nil
}

// application is the fully wired router process.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage
	redis   *persistence.Redis
	metrics *observability.Metrics

	sessions  *service.SessionStore
	persister *persistence.Persister
	router    *service.Router
	auth      *service.AuthService
	tokens    *auth.TokenManager
	gateway   gateway.Gateway

	deliveryPool *worker.Pool
	selfHelpPool *worker.Pool
	sweeper      *worker.Sweeper
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *application, err error) {
	app = &application{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			app.close()
			app = nil
		}
	}()

	app.store, err = openStorage(ctx, cfg, logger, false)
	if err != nil {
		return app, err
	}

	var redisClient redis.UniversalClient
	if cfg.Snapshot.Sink == "redis" || cfg.Gateway.Kind == "stream" {
		app.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		app.store.checks["redis"] = app.redis
		redisClient = app.redis.Client()
	}

	app.sessions = service.NewSessionStore(service.SessionStoreDependencies{
		Repo:   app.store.repo,
		Logger: logger,
	})
	if err = app.sessions.Load(ctx); err != nil {
		return app, fmt.Errorf("load sessions: %w", err)
	}

	var registryOpts []service.RegistryOption
	if app.store.repo != nil {
		registryOpts = append(registryOpts, service.WithDurableTickets())
	}
	registry := service.NewTicketRegistry(nil, registryOpts...)
	state := service.NewStateStore(cfg.AI.HistorySize)
	snapshots := service.NewSnapshotService(registry, state, app.sessions, logger)

	var sink persistence.Sink
	switch cfg.Snapshot.Sink {
	case "file":
		sink = persistence.NewFileSink(cfg.Snapshot.Path)
	case "redis":
		sink = app.redis.SnapshotSink(cfg.Snapshot.RedisKey)
	default:
		sink = persistence.NopSink{}
	}
	codec, err := persistence.NewCodec(cfg.Snapshot.Codec)
	if err != nil {
		return app, err
	}
	app.persister = persistence.NewPersister(snapshots, sink, codec, cfg.Snapshot.FlushInterval, logger)

	snap, ok, loadErr := app.persister.Load(ctx)
	switch {
	case loadErr != nil:
		logger.Error("snapshot unreadable; starting from the session table only", zap.Error(loadErr))
		snap = persistence.NewSnapshot()
	case !ok:
		logger.Info("no snapshot found; starting fresh")
		snap = persistence.NewSnapshot()
	}
	report := snapshots.Restore(ctx, snap)
	if report.Changed() {
		logger.Info("state reconciled with session table",
			zap.Int("orphan_tickets", report.OrphanTickets),
			zap.Int("relinked_tickets", report.RelinkedTickets),
			zap.Int("rebuilt_modes", report.RebuiltModes),
			zap.Int("reset_modes", report.ResetModes))
		app.persister.MarkDirty()
	}

	gatewayCfg := cfg.Gateway
	if app.redis != nil {
		gatewayCfg.StreamTopic = app.redis.Key(gatewayCfg.StreamTopic)
	}
	app.gateway, err = gateway.New(gatewayCfg, redisClient, logger)
	if err != nil {
		return app, err
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	app.deliveryPool = worker.NewPool("deliveries", cfg.Gateway.Workers, cfg.Gateway.QueueSize, logger)
	app.selfHelpPool = worker.NewPool("self_help", cfg.Router.SelfHelpWorkers, cfg.Gateway.QueueSize, logger)

	app.router = service.NewRouter(service.RouterDependencies{
		Registry:       registry,
		Sessions:       app.sessions,
		State:          state,
		Persister:      app.persister,
		Dispatcher:     dispatcher,
		Metrics:        app.metrics,
		Logger:         logger,
		ResponderPool:  domain.Identity(cfg.Gateway.ResponderPoolID),
		SelfHelpPrompt: cfg.Router.SelfHelpPrompt,
	})

	assistant, err := selfhelp.New(ctx, cfg.AI)
	if err != nil {
		return app, err
	}
	if !cfg.AI.Enabled() {
		logger.Info("AI_API_KEY or AI_MODEL not set; self-help replies are disabled")
	}

	notifications := service.NewNotificationService(dispatcher, app.gateway, app.deliveryPool, logger)
	selfHelp := service.NewSelfHelpService(service.SelfHelpDependencies{
		Dispatcher: dispatcher,
		Assistant:  assistant,
		Router:     app.router,
		Pool:       app.selfHelpPool,
		Logger:     logger,
	})
	worker.StartNotificationWorker(notifications, selfHelp)

	app.sweeper = worker.NewSweeper(app.router, cfg.Router.SweepWaitingAfter, cfg.Router.SweepInterval, logger)

	app.tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	app.auth = service.NewAuthService(cfg.Auth, app.tokens, logger)
	return app, nil
}

// drainDeliveries pushes every queued delivery through the gateway inline.
func (a *application) drainDeliveries(ctx context.Context) {
	if n := a.deliveryPool.Drain(ctx); n > 0 {
		a.logger.Info("deliveries drained", zap.Int("count", n))
	}
}

func (a *application) close() {
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			a.logger.Warn("gateway close failed", zap.Error(err))
		}
	}
	a.redis.Close()
	if a.store != nil {
		a.store.close()
	}
}
