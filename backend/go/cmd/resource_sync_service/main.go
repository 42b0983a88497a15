package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/internal/credentials"
	"Cirkle/backend/go/internal/database/kafka"
	"Cirkle/backend/go/internal/database/mongo"
	"Cirkle/backend/go/internal/database/redis"
	"Cirkle/backend/go/internal/discovery/etcd"
	"Cirkle/backend/go/internal/drive"
	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/internal/resource_sync_service/api"
	"Cirkle/backend/go/internal/resource_sync_service/consumer"
	"Cirkle/backend/go/internal/resource_sync_service/publisher"
	"Cirkle/backend/go/internal/resource_sync_service/service"
	"Cirkle/backend/go/internal/resource_sync_service/store"
	cirklehttp "Cirkle/backend/go/pkg/http"
	"Cirkle/backend/go/pkg/logger"
	"Cirkle/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const (
	serviceName       = "resource-sync"
	defaultConfigPath = "backend/go/internal/config/config.yaml"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CIRKLE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	durations, err := cfg.Sync.ParseDurations()
	if err != nil {
		log.Fatalf("Invalid sync configuration: %v", err)
	}

	// Initialize logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("ResourceSyncService", "", "")

	// Connect to MongoDB using the singleton GetClient
	db, err := mongo.GetDatabase(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "mongo_error")).Fatal("Failed to connect to MongoDB")
	}
	serviceLogger.Info("Successfully connected to MongoDB")

	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "redis_error")).Fatal("Failed to connect to Redis")
	}
	serviceLogger.Info("Successfully connected to Redis")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	created, err := kafka.EnsureTopics(bootCtx, &cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "kafka_error")).Fatal("Failed to prepare Kafka topics")
	}
	if len(created) > 0 {
		serviceLogger.WithField("topics", created).Info("Created Kafka topics")
	}

	groupStore := store.NewMongoGroupStore(db, cfg.Sync.GroupsCollection)
	if err := groupStore.EnsureIndexes(bootCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "mongo_error")).Warn("Failed to create group indexes")
	}
	bootCancel()

	// Credentials and Drive
	tokenStore := credentials.NewRedisTokenStore(redisClient,
		credentials.WithRefresher(credentials.NewRefresher(cfg.Auth.Google, "")),
		credentials.WithLogger(serviceLogger),
	)
	driveTransport, err := cirklehttp.TransportFromConfig("google-drive", http.DefaultTransport, cfg.Middleware.CircuitBreaker)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "config_error")).Fatal("Failed to create Drive transport")
	}
	driveOpts := []drive.Option{drive.WithTransport(driveTransport)}
	if cfg.Sync.DriveEndpoint != "" {
		driveOpts = append(driveOpts, drive.WithEndpoint(cfg.Sync.DriveEndpoint))
	}
	driveClient := drive.NewClient(driveOpts...)

	var guard service.Guard = service.ProcessGuard()
	if cfg.Sync.Guard == "redis" {
		guard = service.NewRedisGuard(redisClient, service.DefaultGuardKey, durations.GuardTTL, serviceLogger)
	}
	reconciler := service.NewReconciler(tokenStore, driveClient, groupStore, service.ReconcilerOptions{
		DebounceWindow:       durations.DebounceWindow,
		MaxConcurrentUpdates: cfg.Sync.MaxConcurrentUpdates,
		PassTimeout:          durations.PassTimeout,
		FetchTimeout:         durations.FetchTimeout,
		Guard:                guard,
		Logger:               serviceLogger,
	})

	// Kafka
	kafkaCfg := cfg.Databases.Kafka
	resultPublisher := publisher.NewEventPublisher(kafkaCfg.Brokers, kafkaCfg.SyncResultTopic, serviceLogger)
	viewPublisher := publisher.NewEventPublisher(kafkaCfg.Brokers, kafkaCfg.GroupViewedTopic, serviceLogger)

	syncService := service.NewSyncService(service.Dependencies{
		Groups:      groupStore,
		Reconciler:  reconciler,
		Tokens:      tokenStore,
		Drive:       driveClient,
		Results:     resultPublisher,
		Views:       viewPublisher,
		ConnManager: service.NewConnectionManager(),
		Logger:      serviceLogger,
	})

	viewConsumer := consumer.NewGroupViewConsumer(kafkaCfg.Brokers, kafkaCfg.GroupViewedTopic, kafkaCfg.ConsumerGroupID, serviceLogger)
	ctx, cancel := context.WithCancel(context.Background())
	viewConsumer.Start(ctx, syncService.HandleGroupViewed)
	serviceLogger.Info("Kafka group viewed consumer started")

	// Setup HTTP server
	var userLimiter *ratelimiter.Keyed
	if rl := cfg.Middleware.RateLimiter; rl.PerUserRate > 0 {
		maxUsers := rl.MaxTrackedUsers
		if maxUsers <= 0 {
			maxUsers = 10000
		}
		userLimiter, err = ratelimiter.NewKeyed(rl.PerUserRate, rl.PerUserCapacity, maxUsers, 10*time.Minute)
		if err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err, "config_error")).Fatal("Failed to create per-user rate limiter")
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler := api.NewAPI(syncService, serviceLogger,
		api.HealthCheck{Name: "mongodb", Check: mongo.HealthCheck},
		api.HealthCheck{Name: "redis", Check: redis.HealthCheck},
	)
	api.RegisterRoutes(router, apiHandler, cfg.Auth.JwtSecret, userLimiter)

	srv, err := cirklehttp.NewServer(cfg, router, cirklehttp.WithLogger(serviceLogger))
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "config_error")).Fatal("Failed to create HTTP server")
	}

	// Start server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.NewErrorInfo(err, "http_error")).Fatal("HTTP server failed to start")
		}
	}()

	// Register in etcd when an advertise address is configured
	var deregister func()
	var discovery *etcd.ServiceDiscovery
	if cfg.Server.AdvertiseAs != "" {
		discovery, err = etcd.NewServiceDiscovery(cfg.Databases.Etcd, serviceLogger)
		if err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err, "etcd_error")).Fatal("Failed to connect to etcd")
		}
		deregister, err = discovery.Register(ctx, serviceName, cfg.Server.AdvertiseAs, cfg.Server.RegisterTTL)
		if err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err, "etcd_error")).Fatal("Failed to register service")
		}
		serviceLogger.WithField("address", cfg.Server.AdvertiseAs).Info("Registered in etcd")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	if deregister != nil {
		deregister()
	}
	if discovery != nil {
		_ = discovery.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "http_error")).Error("Server forced to shutdown")
	}

	cancel()
	if err := viewConsumer.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "kafka_error")).Error("Error closing Kafka consumer")
	}
	for _, p := range []*publisher.EventPublisher{resultPublisher, viewPublisher} {
		if err := p.Close(); err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err, "kafka_error")).WithField("topic", p.Topic()).Error("Error closing Kafka publisher")
		}
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "redis_error")).Error("Error closing Redis")
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err, "mongo_error")).Error("Error disconnecting from MongoDB")
	}

	serviceLogger.Info("Server gracefully stopped")
}
