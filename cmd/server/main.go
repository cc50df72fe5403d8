// @title        GecoFarm Session API
// @version      1.0
// @description  Authentication and current-user session service for the GecoFarm dashboards.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gecofarm/farm-session/internal/api"
	"github.com/gecofarm/farm-session/internal/api/middleware"
	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
	"github.com/gecofarm/farm-session/internal/core/service"
	mongodb "github.com/gecofarm/farm-session/internal/infrastructure/db/mongo"
	"github.com/gecofarm/farm-session/internal/infrastructure/db/postgres"
	redisdb "github.com/gecofarm/farm-session/internal/infrastructure/db/redis"
	"github.com/gecofarm/farm-session/internal/infrastructure/http/handlers"
	"github.com/gecofarm/farm-session/internal/infrastructure/identity"
	"github.com/gecofarm/farm-session/internal/infrastructure/messaging/amqp"
	"github.com/gecofarm/farm-session/internal/infrastructure/queue"
	"github.com/gecofarm/farm-session/internal/pkg/config"
	"github.com/gecofarm/farm-session/pkg/logger"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
		File:   cfg.LogFile,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := mongodb.Disconnect(mongoClient); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()

	identities := mongodb.NewIdentityRepository(db)
	if err := identities.EnsureIndexes(ctx); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	readiness := []handlers.Dependency{
		{Name: "mongo", Pinger: mongodb.Pinger{Client: mongoClient}},
		{Name: "redis", Pinger: redisdb.Pinger{Client: rdb}},
	}

	var users ports.UserStore
	switch cfg.RowStore {
	case config.RowStorePostgres:
		gdb, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN}, log)
		if err != nil {
			return err
		}
		users = postgres.NewUserRepository(gdb)
		readiness = append(readiness, handlers.Dependency{Name: "postgres", Pinger: postgres.Pinger{DB: gdb}})
	default:
		repo := mongodb.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err
		}
		users = repo
	}

	// workers outlive the signal so in-flight requests can finish during shutdown
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var events ports.AuthEventPublisher = amqp.NopPublisher{}
	if cfg.AMQP.URL != "" {
		publisher := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		publisher.Start(workerCtx)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("amqp close failed")
			}
		}()
		events = publisher
	}

	dispatcher := queue.NewDispatcher(cfg.ResolverWorkers, log)
	dispatcher.Start(workerCtx)

	factory := identity.NewFactory(identities, redisdb.NewSessionStore(rdb, log), users, identity.Options{
		SessionTTL: cfg.SessionTTL,
		Timeout:    cfg.StoreTimeout,
	}, log)

	seeded, err := factory.SeedCredentials(ctx,
		identity.SeedAccount{Email: domain.DemoAdminEmail, Password: cfg.Demo.AdminPassword},
		identity.SeedAccount{Email: domain.DemoEmployeeEmail, Password: cfg.Demo.EmployeePassword},
	)
	if err != nil {
		return err
	}
	if seeded > 0 {
		log.Info().Int("count", seeded).Msg("demo credentials seeded")
	}

	manager := service.NewSessionManager(factory.ForSession, service.ResolverDeps{
		Users:  users,
		Seeds:  domain.DefaultDemoSeedPolicy(),
		Tasks:  dispatcher,
		Events: events,
		Log:    log,
	}, cfg.SessionIdleTTL)
	defer manager.Close()

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = redisdb.NewRateLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	e := api.NewRouter(api.Deps{
		Registry:     manager,
		Tokens:       middleware.NewSessionTokens(cfg.JWTSecret, cfg.SessionTTL),
		Limiter:      limiter,
		Log:          log,
		CORSOrigin:   cfg.CORSAllowedOrigin,
		CookieSecure: cfg.CookieSecure,
		GuardWait:    cfg.GuardWait,
		Readiness:    readiness,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("row_store", cfg.RowStore).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		manager.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
