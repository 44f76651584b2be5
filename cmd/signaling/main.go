package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/config"
	"github.com/mindhaven/signaling/internal/handlers"
	"github.com/mindhaven/signaling/internal/redis"
	"github.com/mindhaven/signaling/internal/registry"
	"github.com/mindhaven/signaling/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session registry: Redis when configured, process memory otherwise.
	var reg registry.SessionRegistry
	if cfg.UseRedis {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		logger.Info("Redis connection established",
			zap.String("host", cfg.Redis.Host), zap.String("port", cfg.Redis.Port))
		reg = registry.NewRedisRegistry(client)
	} else {
		reg = registry.NewMemoryRegistry()
	}

	msgStore := store.NewMessageStore(cfg.MessageRetention, logger)
	go msgStore.Run(ctx, cfg.SweepInterval)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	sig := handlers.NewSignaling(msgStore, reg, logger)
	router := handlers.NewRouter(sig, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting live-session signaling server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
