package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/api"
	"gwi.com/chat-threads/internal/config"
	"gwi.com/chat-threads/internal/core"
	"gwi.com/chat-threads/internal/logging"
	"gwi.com/chat-threads/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Command line flag for schema migration
	migrateFlag := flag.Bool("migrate", false, "Apply the database schema and exit")
	flag.Parse()

	// Setup logging
	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Production:  cfg.IsProduction(),
		LogFilePath: cfg.LogFilePath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("service starting",
		zap.String("env", cfg.Environment),
		zap.String("driver", cfg.DatabaseDriver),
		zap.String("log_level", cfg.LogLevel))

	// Initialize database store; the schema is applied on open
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.DBConnectRetry+cfg.DBAcquireTimeout)
	dbStore, err := openStore(startupCtx, cfg, logger)
	cancelStartup()
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	if *migrateFlag {
		logger.Info("schema applied, exiting")
		return
	}

	// Initialize services
	userService := core.NewUserService(dbStore, logger)
	chatService := core.NewChatService(dbStore, logger)
	messageService := core.NewMessageService(dbStore, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(userService, chatService, messageService, logger, cfg.IsProduction())
	router := api.NewRouter(apiHandler, api.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give in-flight requests time to finish before the pool is closed.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server exited gracefully")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.SQLStore, error) {
	opts := store.Options{
		Pool: store.PoolConfig{
			MaxConns:       cfg.DBMaxConns,
			IdleTimeout:    cfg.DBIdleTimeout,
			AcquireTimeout: cfg.DBAcquireTimeout,
			ConnectRetry:   cfg.DBConnectRetry,
		},
		Logger: logger,
	}
	if cfg.DatabaseDriver == config.DriverPostgres {
		return store.NewPostgresStore(ctx, cfg.DatabaseURL, opts)
	}
	return store.NewSQLiteStore(ctx, cfg.DatabaseURL, opts)
}
