package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	conflictapp "github.com/syncline/backend/internal/application/conflict"
	ingestionapp "github.com/syncline/backend/internal/application/ingestion"
	recordapp "github.com/syncline/backend/internal/application/record"
	transformapp "github.com/syncline/backend/internal/application/transform"
	"github.com/syncline/backend/internal/application/writesync"
	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/infrastructure/config"
	"github.com/syncline/backend/internal/infrastructure/event"
	"github.com/syncline/backend/internal/infrastructure/logger"
	"github.com/syncline/backend/internal/infrastructure/persistence"
	"github.com/syncline/backend/internal/infrastructure/scheduler"
	"github.com/syncline/backend/internal/infrastructure/sourceapi"
	"github.com/syncline/backend/internal/infrastructure/telemetry"
	"github.com/syncline/backend/internal/interfaces/http/handler"
	"github.com/syncline/backend/internal/interfaces/http/middleware"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// defaultEndpoints lists the source-system endpoints the ingestion service
// knows how to pull. Cursor fields follow the source API's field naming.
var defaultEndpoints = []ingestion.EndpointConfig{
	{Endpoint: "/products", EntityType: "product", CursorType: ingestion.CursorTypeTimestamp, CursorField: "updated_at", PageSize: 200},
	{Endpoint: "/customers", EntityType: "customer", CursorType: ingestion.CursorTypeTimestamp, CursorField: "updated_at", PageSize: 200},
	{Endpoint: "/suppliers", EntityType: "supplier", CursorType: ingestion.CursorTypeID, CursorField: "id", PageSize: 200},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

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

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	gormQueryLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	dbOpts := []persistence.Option{persistence.WithQueryLogger(gormQueryLogger)}
	if cfg.Telemetry.Enabled && cfg.Telemetry.TraceDB {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.LogFullSQL,
			SlowQueryThresh: 200 * time.Millisecond,
			DBSystem:        "postgresql",
		}, log)
		dbOpts = append(dbOpts, persistence.WithTracing(dbTracing))
	}
	db, err := persistence.Open(&cfg.Database, dbOpts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisAvailable := true
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unavailable, falling back to in-process run lock and event bus", zap.Error(err))
			redisAvailable = false
		}
		cancel()
	}
	defer func() {
		_ = redisClient.Close()
	}()

	// Repositories
	rawRepo := persistence.NewGormRawRecordRepository(db.DB)
	batchRepo := persistence.NewGormIngestBatchRepository(db.DB)
	rulesetRepo := persistence.NewGormRuleSetRepository(db.DB)
	mirrorRepo := persistence.NewGormMirrorRepository(db.DB)
	historyRepo := persistence.NewGormHistoryRepository(db.DB)
	lineageRepo := persistence.NewGormLineageRepository(db.DB)
	modRepo := persistence.NewGormModificationRepository(db.DB)
	conflictRepo := persistence.NewGormConflictRepository(db.DB)
	queueRepo := persistence.NewGormWriteQueueRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	progressRepo := persistence.NewGormJobProgressRepository(db.DB)
	commitStore := persistence.NewGormCommitStore(db.DB)

	// Event publishing: in-process bus always, Redis fan-out when reachable
	eventBus := event.NewInMemoryEventBus(log)
	var publisher shared.EventPublisher = eventBus
	if redisAvailable {
		publisher = event.NewFanoutPublisher(eventBus, event.NewRedisPublisher(redisClient, log))
	}

	// Source system clients
	readClient := sourceapi.NewReadClient(cfg.Source)
	writeClient := sourceapi.NewWriteClient(cfg.Source)

	// Application services
	ingestionService := ingestionapp.NewService(
		batchRepo, rawRepo, progressRepo, readClient,
		defaultEndpoints, cfg.Ingestion, cfg.Source, log,
	)
	transformService := transformapp.NewService(
		batchRepo, rawRepo, rulesetRepo, mirrorRepo,
		historyRepo, lineageRepo, progressRepo, cfg.Ingestion, log,
	)
	conflictService := conflictapp.NewService(
		modRepo, mirrorRepo, historyRepo, conflictRepo, queueRepo, publisher, log,
	)
	recordService := recordapp.NewService(mirrorRepo, modRepo, queueRepo, publisher, log)
	writerFor := func(orgID uuid.UUID) writesync.Writer { return writeClient }
	syncService := writesync.NewService(
		queueRepo, modRepo, mirrorRepo, conflictService,
		syncLogRepo, commitStore, writerFor, publisher, cfg.Worker, log,
	)

	// Write sync worker
	if cfg.Worker.Enabled {
		var lock scheduler.RunLock
		if redisAvailable {
			lock = scheduler.NewRedisRunLock(redisClient, "sync:worker:runlock")
		} else {
			lock = scheduler.NewLocalRunLock()
		}
		worker := scheduler.NewSyncWorker(syncService, lock, cfg.Worker, log)
		if err := worker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync worker", zap.Error(err))
		}
		defer worker.Stop()
		log.Info("Write sync worker started",
			zap.Duration("interval", cfg.Worker.Interval),
			zap.Int("batch_size", cfg.Worker.BatchSize),
		)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(gin.Recovery())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(middleware.DefaultMaxBodyBytes))
	engine.Use(middleware.OrgContext())

	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewRecordHandler(recordService, transformService).Routes())
	r.Register(handler.NewEditHandler(recordService).Routes())
	r.Register(handler.NewConflictHandler(conflictService).Routes())
	r.Register(handler.NewSyncHandler(ingestionService, transformService, log).Routes())
	r.Register(handler.NewRulesetHandler(transformService).Routes())
	r.Register(handler.NewQueueHandler(syncService).Routes())
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}

func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		body := gin.H{"status": "ok", "time": time.Now().UTC()}
		if stats, err := db.PoolStats(); err == nil {
			body["db_pool"] = stats
		}
		c.JSON(http.StatusOK, body)
	}
}
