package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-sync/config"
	"trading-sync/internal/api"
	"trading-sync/internal/database"
	"trading-sync/internal/events"
	"trading-sync/internal/filesync"
	"trading-sync/internal/logging"
	"trading-sync/internal/ordersync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")
	logger.Info("Instance mode", "mode", cfg.SyncConfig.InstanceMode, "namespace", cfg.SyncConfig.Namespace)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal("Failed to run migrations", "error", err)
	}
	cancelMigrate()

	repo := database.NewRepository(db)
	logger.Info("Database initialized")

	// Initialize shared store client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Address,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
		PoolSize: cfg.RedisConfig.PoolSize,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Shared store unreachable at startup, sync loops will retry", "error", err)
	}
	cancelPing()

	// Order synchronization between ledger and shared store
	store := ordersync.NewRedisStore(redisClient, cfg.SyncConfig.Namespace)
	syncManager := ordersync.NewManager(repo, store, eventBus, cfg.SyncConfig.Interval, cfg.SyncConfig.IsCloud())
	syncManager.Start()
	defer syncManager.Stop()
	logger.Info("Order sync manager started", "interval", cfg.SyncConfig.Interval.String())

	// File replication channel
	ns := filesync.NewNamespace(cfg.SyncConfig.Namespace)
	fileStore := filesync.NewRedisStore(redisClient)
	dataPath := cfg.ReplicationConfig.DataPath

	var publisher *filesync.Publisher
	var subscriber *filesync.Subscriber

	if cfg.SyncConfig.IsCloud() {
		subscriber = filesync.NewSubscriber(redisClient, ns, dataPath, eventBus, zlog)
		if err := subscriber.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start file subscriber", "error", err)
		}
		defer subscriber.Stop()
	} else {
		publisher = filesync.NewPublisher(fileStore, ns, dataPath, zlog)
		if err := publisher.Start(); err != nil {
			logger.Fatal("Failed to start file publisher", "error", err)
		}
		defer publisher.Stop()
		publisher.InitialSync(context.Background())
	}

	reconciler := filesync.NewReconciler(fileStore, ns, dataPath, publisher, filesync.ReconcilerConfig{
		ReconcileInterval:  cfg.ReplicationConfig.ReconcileInterval,
		CleanupInterval:    cfg.ReplicationConfig.CleanupInterval,
		RetentionDays:      cfg.ReplicationConfig.RetentionDays,
		AuthoritativeLocal: cfg.ReplicationConfig.AuthoritativeLocal,
	}, zlog)
	reconciler.Start(context.Background())
	defer reconciler.Stop()
	logger.Info("File replication started", "data_path", dataPath)

	// WebSocket hub broadcasting bus events
	api.InitWebSocket(eventBus)

	// HTTP server
	accounts, err := api.NewAccountStore(dataPath)
	if err != nil {
		logger.Fatal("Failed to init account store", "error", err)
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: cfg.LoggingConfig.Level != "DEBUG",
	}, repo, eventBus, accounts)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	log.Println("Shutdown complete")
}
