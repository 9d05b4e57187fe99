package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	syncapp "github.com/storesync/backend/internal/application/sync"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/cache"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/infrastructure/persistence"
	"github.com/storesync/backend/internal/infrastructure/shopify"
	"github.com/storesync/backend/internal/infrastructure/storage"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"github.com/storesync/backend/internal/interfaces/http/handler"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"github.com/storesync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting StoreSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize OpenTelemetry metrics
	bootCtx := context.Background()
	meterProvider, err := telemetry.NewMeterProvider(bootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  meterProvider.Meter("storesync"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	} else if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(bootCtx)
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	watermarkStore := persistence.NewGormWatermarkStore(db.DB)
	externalIDRepo := persistence.NewGormExternalIDRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	contactRepo := persistence.NewGormContactRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	carrierRepo := persistence.NewGormCarrierRepository(db.DB)

	// Redis backs webhook delivery dedup and the token blacklist when
	// configured; single-instance deployments fall back to in-memory stores.
	var (
		deliveryStore shared.DeliveryDedup
		blacklist     auth.TokenBlacklist
	)
	if cfg.Redis.Host != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(bootCtx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		deliveryStore = cache.NewRedisDeliveryStoreWithClient(redisClient, "")
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		deliveryStore = cache.NewInMemoryDeliveryStore()
		blacklist = auth.NewInMemoryTokenBlacklist()
		log.Warn("Redis not configured, using in-memory delivery dedup and token blacklist")
	}
	defer func() {
		if err := deliveryStore.Close(); err != nil {
			log.Error("Error closing delivery store", zap.Error(err))
		}
		blacklist.Close()
	}()

	// Media stager: S3 when enabled, otherwise remote URLs pass through as-is
	var stager syncapp.MediaStager
	if cfg.Storage.Enabled {
		s3Stager, err := storage.NewS3MediaStager(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize S3 media stager", zap.Error(err))
		}
		stager = s3Stager
		log.Info("S3 media staging enabled", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		stager = storage.NewPassthroughStager()
	}

	// The platform adapter is constructed lazily per scheduler run so a
	// storefront outage at boot does not keep the admin API down.
	shopifyCfg := shopify.NewConfig(cfg.Shopify, cfg.Sync)
	platformFactory := func(ctx context.Context) (integration.StorefrontPlatform, error) {
		return shopify.NewAdapter(ctx, shopifyCfg, syncMetrics, log)
	}

	engine := syncapp.NewEngine(syncapp.EngineConfig{
		Platform:          platformFactory,
		Products:          productRepo,
		Contacts:          contactRepo,
		Orders:            orderRepo,
		Carriers:          carrierRepo,
		ExternalIDs:       externalIDRepo,
		Jobs:              jobRepo,
		Watermarks:        watermarkStore,
		Stager:            stager,
		Sync:              cfg.Sync,
		RetryableConflict: persistence.IsSerializationFailure,
		Logger:            log,
	})

	scheduler := syncapp.NewScheduler(
		jobRepo,
		watermarkStore,
		engine.Handlers(),
		cfg.Sync,
		syncMetrics,
		log,
		syncapp.WithFailureNotifier(func(job *syncdomain.Job) {
			log.Error("Sync job failed terminally",
				zap.String("job_id", job.ID.String()),
				zap.String("mode", string(job.Mode)),
				zap.String("error_kind", string(job.ErrorKind)),
				zap.String("error", job.ErrorMessage),
			)
		}),
	)

	schedulerCtx, stopScheduler := context.WithCancel(bootCtx)
	defer stopScheduler()
	go scheduler.Run(schedulerCtx)
	log.Info("Sync scheduler started", zap.Duration("dispatch_interval", cfg.Sync.DispatchInterval))

	// Admin API auth
	jwtService := auth.NewJWTService(cfg.JWT)
	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.TokenBlacklist = blacklist
	jwtConfig.Logger = log

	webhookLimiter := middleware.NewRateLimiter(240, time.Minute)
	defer webhookLimiter.Close()

	webhookHandler := handler.NewWebhookHandler(
		cfg.Shopify.WebhookSecret,
		scheduler,
		deliveryStore,
		syncMetrics,
		log,
	)

	ginEngine := router.NewEngine(router.EngineOptions{
		Logger: log,
		Env:    cfg.App.Env,
		CORS:   middleware.DefaultCORSConfig(),
		Metrics: middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			Enabled:       cfg.Telemetry.Enabled,
		},
		Webhook:        webhookHandler,
		WebhookLimiter: webhookLimiter,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		ReadyCheck: func(ctx context.Context) error {
			return db.Ping()
		},
	})

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	router.NewRouter(ginEngine,
		router.WithMiddleware(middleware.JWTAuthMiddlewareWithConfig(jwtConfig)),
	).
		Register(handler.NewSyncHandler(jobRepo, scheduler, log)).
		Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown: stop accepting HTTP first, then stop the scheduler
	// so a running job can finish its current page.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopScheduler()

	log.Info("Server exited gracefully")
}
