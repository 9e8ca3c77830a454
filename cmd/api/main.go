package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopify-insights/internal/application"
	"shopify-insights/internal/config"
	"shopify-insights/internal/infrastructure/api"
	"shopify-insights/internal/infrastructure/lock"
	"shopify-insights/internal/infrastructure/memstore"
	"shopify-insights/internal/infrastructure/repository"
	shopifyinfra "shopify-insights/internal/infrastructure/shopify"
	"shopify-insights/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, envFound := config.Load()

	// Initialize logger
	logger := newLogger(cfg)
	if !envFound {
		logger.Warn().Msg(".env file not found, using process environment")
	}
	if cfg.APIKey == "" {
		logger.Warn().Msg("API_KEY is not set; every protected route will answer 401")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize persistence
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("Failed to open store")
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize sync lock")
	}
	defer closeLocker()

	// Initialize the Shopify source with a per-shop rate limiter
	source := shopifyinfra.NewDataSourceWithOptions(shopifyinfra.Options{
		APIVersion: cfg.Shopify.APIVersion,
		Timeout:    cfg.Shopify.Timeout,
		Logger:     logger,
	})

	// Initialize application services
	clock := ports.SystemClock{}
	reconciler := application.NewReconciliationService(store, clock, logger)
	syncService := application.NewSyncService(store.Tenants(), source, reconciler, locker, logger)
	aggregator := application.NewAggregationService(store, clock, logger)
	tenantService := application.NewTenantService(store.Tenants(), store.Customers(), logger)
	eventService := application.NewEventService(store.Tenants(), store.Events(), clock, logger)

	var scheduler *application.SyncScheduler
	if cfg.Sync.Enabled {
		scheduler = application.NewSyncScheduler(
			store.Tenants(),
			syncService,
			application.SchedulerConfig{Interval: cfg.Sync.Interval, Concurrency: cfg.Sync.Concurrency},
			nil,
			clock,
			logger,
		)
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start sync scheduler")
		}
	} else {
		logger.Info().Msg("Scheduled sync disabled")
	}

	handler := api.NewHandler(tenantService, syncService, aggregator, eventService, logger)
	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, handler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Server.Port + "/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Sync scheduler shutdown failed")
		}
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "shopify-insights").Logger()
}

// openStore connects the configured backend and returns a close function
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ports.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn().Msg("Using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil

	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			closeFn()
			return nil, nil, err
		}

		store := repository.NewMongoStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.Mongo.Database).Msg("Connected to MongoDB")
		return store, closeFn, nil

	default:
		return nil, nil, errors.New("unknown STORE_BACKEND " + cfg.Store.Backend)
	}
}

// newLocker uses Redis when REDIS_ADDR is set so replicas never sync the same tenant twice
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ports.TenantLocker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocalLocker(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis sync lock")
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
	return lock.NewRedisLocker(rdb, lock.DefaultKeyPrefix, cfg.Sync.LockTTL, logger), closeFn, nil
}
