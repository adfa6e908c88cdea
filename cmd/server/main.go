package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msniranjan18/chhavinity/config"
	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/hub"
	"github.com/msniranjan18/chhavinity/pkg/routes"
	"github.com/msniranjan18/chhavinity/pkg/store"
	"go.uber.org/multierr"

	_ "github.com/msniranjan18/chhavinity/docs"
)

//	@title						Chhavinity Account API
//	@version					1.0
//	@description				Online status, last-seen heartbeat and friends for the Chhavinity presence agent.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting Chhavinity account server", "port", cfg.Server.Port, "env", cfg.Server.Env)

	// 1. Initialize Storage
	storage, err := store.NewStore(ctx, store.Options{
		PostgresURL:  cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxIdleTime:  cfg.Database.MaxIdleTime,
		RedisURL:     cfg.Redis.URL,
		RedisTLS:     cfg.Redis.TLS,
		PresenceTTL:  cfg.Redis.PresenceTTL,
	}, logger.With("component", "store"))
	if err != nil {
		logger.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	if err := storage.InitSchema(ctx); err != nil {
		logger.Error("Failed to initialize schema", "error", err)
		storage.Close()
		os.Exit(1)
	}

	go storage.StartCleanupWorker(ctx, cfg.Redis.PresenceTTL)

	// 2. Initialize JWT authentication
	auth.InitJWT(cfg.JWT.Secret, cfg.JWT.Expiration)

	// 3. Initialize WebSocket Hub
	wsHub := hub.NewHub(storage.RDB, logger.With("component", "hub"))
	go wsHub.Run(ctx)
	go wsHub.ListenToRedis(ctx)

	// 4. Start HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      routes.NewRouter(wsHub, storage, cfg.Server.AllowedOrigins, logger.With("component", "http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server is ready to accept connections", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := multierr.Combine(server.Shutdown(shutdownCtx), storage.Close()); err != nil {
		logger.Error("Shutdown finished with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped successfully")
}
