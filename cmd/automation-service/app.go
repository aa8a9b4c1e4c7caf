package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"plutus/internal/automation"
	"plutus/internal/broker"
	"plutus/internal/config"
	"plutus/internal/constants"
	"plutus/internal/ingest"
	"plutus/internal/logger"
	"plutus/internal/management"
	"plutus/internal/notify"
	"plutus/pkg/bootstrap"
	"plutus/pkg/health"
	"plutus/pkg/metrics"
	"plutus/pkg/middleware"
	"plutus/pkg/migrations"
	"plutus/pkg/ratelimit"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	registry *automation.Registry
	services *automation.Services
	ingest   *ingest.Service
	producer broker.Producer

	server *http.Server
	router *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initAutomation(ctx); err != nil {
		return fmt.Errorf("failed to initialize automation: %w", err)
	}

	if err := a.initIngest(ctx); err != nil {
		return fmt.Errorf("failed to initialize ingest: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := bootstrap.RunMigrations(a.db, a.config.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = redisClient

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	name := a.config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) initAutomation(ctx context.Context) error {
	mongoDB := a.mongoDatabase()

	if err := migrations.EnsureExecutionLogsCollection(ctx, mongoDB); err != nil {
		return err
	}

	a.services = &automation.Services{
		Notifications: notify.NewWebhookSender(a.config.Notify, a.logger),
	}

	a.registry = automation.NewRegistry(
		automation.NewPostgresRuleRepository(a.db),
		automation.NewMongoLogStore(mongoDB),
		automation.NewEmitter(a.logger),
		a.services,
		a.logger,
	)

	metrics.RegisterAutomationMetrics()
	metrics.RegisterNotifyMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	return nil
}

func (a *App) initIngest(ctx context.Context) error {
	if a.config.Broker.Type == "" {
		a.logger.Warnw("No broker configured, event ingestion disabled")
		return nil
	}

	consumer, err := broker.NewConsumer(a.config.Broker, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	topic := a.config.Broker.Kafka.EventTopic
	if topic == "" {
		topic = constants.DefaultEventTopic
	}

	dedup := ingest.NewDeduplicator(
		ingest.NewRepository(a.redisClient),
		a.config.Ingest.Deduplication,
		a.logger,
	)

	a.ingest = ingest.NewService(consumer, a.registry, a.services, dedup, topic, a.logger)

	metrics.RegisterIngestMetrics()
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             float64(a.config.Management.RateLimit.RPS),
			Burst:           a.config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Management.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	repo := management.NewRepository(a.db)
	versioningRepo := management.NewVersioningRepository(a.db)
	logStore := automation.NewMongoLogStore(a.mongoDatabase())

	opts := []management.ServiceOption{
		management.WithVersioning(versioningRepo),
		management.WithExecutionLogs(logStore),
	}

	if a.config.Broker.Type == "kafka" && a.config.Broker.Kafka.RuleChangeTopic != "" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.Warnw("Failed to create rule event producer, rule change events disabled", "error", err)
		} else {
			a.producer = producer
			opts = append(opts, management.WithRuleEvents(
				management.NewRuleEventProducer(producer, a.config.Broker.Kafka.RuleChangeTopic),
			))
		}
	}

	svc := management.NewService(repo, a.registry, opts...)
	management.NewHandler(svc, a.logger).RegisterRoutes(router)

	metrics.RegisterManagementMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.logger.InfowCtx(groupCtx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.ingest != nil {
		group.Go(func() error {
			if err := a.ingest.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ingest error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		a.runLogPruner(groupCtx)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		return a.Shutdown(groupCtx)
	})

	return group.Wait()
}

// runLogPruner deletes execution logs older than the retention window on a
// fixed interval.
func (a *App) runLogPruner(ctx context.Context) {
	intervalMins := a.config.Automation.PruneIntervalMinutes
	if intervalMins <= 0 {
		intervalMins = constants.DefaultPruneIntervalMins
	}

	logStore := automation.NewMongoLogStore(a.mongoDatabase())

	ticker := time.NewTicker(time.Duration(intervalMins) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := logStore.Prune(ctx, a.config.Automation.LogRetentionDays)
			if err != nil {
				a.logger.ErrorwCtx(ctx, "Failed to prune execution logs", "error", err)
				continue
			}
			if deleted > 0 {
				a.logger.InfowCtx(ctx, "Pruned execution logs", "deleted", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.ingest != nil {
		if err := a.ingest.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ingest shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer shutdown error: %w", err))
		}
	}

	if a.registry != nil {
		a.registry.DestroyAll()
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Shutdown complete")
	return nil
}
