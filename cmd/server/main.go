package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/config"
	"ad-assistant/backend/pkg/di"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/router"
	"ad-assistant/backend/shared/observability"
	"ad-assistant/backend/shared/redis"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	version := os.Getenv("APP_VERSION")
	log.Info("Starting application", "version", version, "env", cfg.Server.Env)

	if err := cfg.Validate(); err != nil {
		if cfg.Server.Env == "production" {
			log.LogError(err, "Invalid configuration")
			os.Exit(1)
		}
		log.Warn("Configuration incomplete", "error", err.Error())
	}

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(cfg.Observability.ServiceName)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
		} else {
			shutdownTracing = shutdown
		}
	}
	if cfg.Observability.MetricsEnabled {
		if _, err := observability.SetupPrometheusMetrics(); err != nil {
			log.LogError(err, "Failed to initialize metrics exporter")
		}
	}

	// Initialize database
	startCtx, cancelStart := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	db, err := config.NewDB(startCtx, cfg, log)
	cancelStart()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	rdb := redis.NewRedisClient(redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	container, err := di.New(cfg, db, rdb, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Health.Start()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// gRPC health endpoint for orchestrators
	lis, err := net.Listen("tcp", ":"+cfg.Observability.GRPCPort)
	if err != nil {
		log.LogError(err, "Failed to listen for gRPC health", "port", cfg.Observability.GRPCPort)
		os.Exit(1)
	}
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := container.Health.ServeGRPC(ctx, lis); err != nil {
			log.LogError(err, "gRPC health server stopped")
		}
	}()

	go container.Hub.Run(ctx)

	r := router.New(container)
	// validation middleware has to be in place before the routes it guards
	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		if err := r.AddOpenAPIValidation(schemaPath); err != nil {
			log.LogError(err, "OpenAPI validation disabled")
		}
	}
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	// stops the hub and the gRPC server
	stop()
	<-grpcDone

	container.Health.Stop()
	r.Close()
	container.Close()
	if err := rdb.Close(); err != nil {
		log.LogError(err, "Failed to close redis client")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.LogError(err, "Failed to flush traces")
	}

	log.Info("Server exited gracefully")
}
