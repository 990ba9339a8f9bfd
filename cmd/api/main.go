package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/incident-service/internal/api/http"
	"github.com/spec-kit/incident-service/internal/api/http/handlers"
	"github.com/spec-kit/incident-service/internal/auth"
	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/dedup"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/persistence"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/service"
	"github.com/spec-kit/incident-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var (
		incidentRepo repository.IncidentRepository
		counterRepo  repository.CounterRepository
	)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		incidentRepo = repository.NewIncidentRepository(pg.PoolHandle(), cfg.Postgres.MaxTxRetries)
		counterRepo = repository.NewCounterRepository(pg.PoolHandle())
	} else {
		logger.Warn("using in-memory incident store; tickets are lost on restart")
		store := repository.NewMemoryStore()
		incidentRepo = store
		counterRepo = store
	}

	var (
		redis *persistence.Redis
		cache dedup.Cache
	)
	switch cfg.Dedup.CacheBackend {
	case config.CacheBackendRedis:
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		cache = dedup.NewRedisCache(redis.Client, cfg.Dedup.LocalWindow())
	default:
		memoryCache := dedup.NewMemoryCache(cfg.Dedup.LocalWindow())
		worker.StartCacheSweeper(ctx, memoryCache, cfg.Dedup.SweepInterval(), logger)
		cache = memoryCache
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	guard := dedup.NewGuard(cache, incidentRepo, dedup.Options{
		DurableWindow: cfg.Dedup.DurableWindow(),
		FailOpen:      cfg.Dedup.FailOpen,
		Logger:        logger,
		Metrics:       metrics,
	})
	incidentService := service.NewIncidentService(service.IncidentDependencies{
		IncidentRepo: incidentRepo,
		CounterRepo:  counterRepo,
		Allocator:    service.NewSequenceAllocator(incidentRepo, logger),
		Guard:        guard,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Incidents:      handlers.NewIncidentsHandler(incidentService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
