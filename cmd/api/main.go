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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scoopai/backend/internal/config"
	"scoopai/backend/internal/db"
	"scoopai/backend/internal/llm"
	"scoopai/backend/internal/logging"
	"scoopai/backend/internal/server"
	"scoopai/backend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	if err := store.ValidateRuntimeSchema(ctx, pool); err != nil {
		logger.Fatal("database schema mismatch", zap.Error(err))
	}

	rdb := connectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	var ai llm.Client
	if cfg.GeminiAPIKey == "" {
		// Validate() only allows a missing key in local/test environments.
		logger.Warn("GEMINI_API_KEY not set, answering with the mock client")
		ai = llm.MockClient{Model: cfg.GeminiModel}
	} else {
		ai = llm.NewGeminiClient(cfg)
	}

	app := server.New(cfg, pool, rdb, ai, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("scoopai api listening", zap.String("addr", "http://localhost:"+cfg.AppPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when redis is unconfigured or unreachable; the
// API runs without the catalog cache in that case.
func connectRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, catalog cache disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, catalog cache disabled", zap.Error(err))
		return nil
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, catalog cache disabled", zap.Error(err))
		rdb.Close()
		return nil
	}
	return rdb
}
