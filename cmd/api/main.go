package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-gateway/internal/api/http"
	"github.com/spec-kit/auth-gateway/internal/api/http/handlers"
	"github.com/spec-kit/auth-gateway/internal/auth"
	"github.com/spec-kit/auth-gateway/internal/config"
	"github.com/spec-kit/auth-gateway/internal/events"
	"github.com/spec-kit/auth-gateway/internal/identity"
	"github.com/spec-kit/auth-gateway/internal/observability"
	"github.com/spec-kit/auth-gateway/internal/persistence"
	"github.com/spec-kit/auth-gateway/internal/repository"
	"github.com/spec-kit/auth-gateway/internal/service"
	"github.com/spec-kit/auth-gateway/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open revocation ledger", zap.String("backend", cfg.Ledger.Backend), zap.Error(err))
	}
	defer ledger.close()

	tokenManager, err := auth.NewTokenManager(cfg.Auth.SigningKey)
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}

	identityClient, err := identity.NewClient(cfg.Identity)
	if err != nil {
		logger.Fatal("failed to init identity client", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	liveness := service.NewLivenessService(identityClient, service.LivenessPolicy{
		OnExistenceError:  cfg.Identity.ExistsErrorPolicy,
		OnEnablementError: cfg.Identity.EnabledErrorPolicy,
	}, cfg.Identity.Timeout, logger, metrics)

	tokenService, err := service.NewTokenService(service.TokenDependencies{
		Tokens:                  tokenManager,
		Ledger:                  service.NewRevocationLedger(ledger.repo, cfg.Ledger.Timeout, logger, metrics),
		Accounts:                liveness,
		Dispatcher:              dispatcher,
		Logger:                  logger,
		Metrics:                 metrics,
		LedgerUnavailablePolicy: cfg.Ledger.UnavailablePolicy,
		RevokeTimeout:           cfg.Auth.RevokeTimeout,
	})
	if err != nil {
		logger.Fatal("failed to init token service", zap.Error(err))
	}

	if ledger.purger != nil {
		go worker.NewReclaimer(ledger.purger, cfg.Ledger.ReclaimInterval, logger, metrics).Run(ctx)
	}

	readiness := map[string]handlers.Pinger{"ledger": tokenService}
	if ledger.conn != nil {
		readiness[cfg.Ledger.Backend] = ledger.conn
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:           handlers.NewAuthHandler(tokenService, cfg.App.Name, cfg.Auth.CookieName),
		AuthMiddleware: auth.NewAuthMiddleware(tokenService),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.App.Addr()),
			zap.String("ledger_backend", cfg.Ledger.Backend),
			zap.String("ledger_unavailable_policy", string(cfg.Ledger.UnavailablePolicy)))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := tokenService.Drain(drainCtx); err != nil {
		logger.Warn("pending revocations abandoned", zap.Error(err))
	}
}

// ledgerBackend is the opened revocation store. purger is nil for backends
// that expire entries on their own; conn is nil for the in-memory store.
type ledgerBackend struct {
	repo   repository.RevocationRepository
	purger repository.Purger
	conn   handlers.Pinger
	close  func()
}

func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ledgerBackend, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendRedis:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		return &ledgerBackend{
			repo:  repository.NewRedisRevocationRepository(redis.Client, cfg.Ledger.KeyPrefix),
			conn:  redis,
			close: redis.Close,
		}, nil

	case config.LedgerBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		repo := repository.NewPostgresRevocationRepository(pg.PoolHandle())
		purger, _ := repo.(repository.Purger)
		return &ledgerBackend{repo: repo, purger: purger, conn: pg, close: pg.Close}, nil

	case config.LedgerBackendMemory:
		logger.Warn("in-memory revocation ledger is not shared between instances")
		repo := repository.NewMemoryRevocationRepository()
		return &ledgerBackend{repo: repo, purger: repo, close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
