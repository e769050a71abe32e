package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/config"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/logger"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/ratelimit"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/server"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Environment, os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		zlog.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	store, sweep := buildStore(cfg, redis, postgres)
	engine := ratelimit.NewEngine(store)

	srv, err := server.New(cfg, zlog, redis, postgres, engine)
	if err != nil {
		zlog.Fatal("failed to build server", zap.Error(err))
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if sweep != nil {
		go sweep(sweepCtx, zlog)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

type sweepFunc func(ctx context.Context, log *zap.Logger)

// buildStore selects the shared counter backend. The postgres backend also
// needs a periodic sweeper, since SQL rows have no native TTL.
func buildStore(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (ratelimit.CounterStore, sweepFunc) {
	switch cfg.RateLimit.Backend {
	case "postgres":
		store := ratelimit.NewPostgresStore(postgres)
		return store, func(ctx context.Context, log *zap.Logger) {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := store.CleanupExpired(ctx)
					if err != nil {
						log.Warn("rate limit sweep failed", zap.Error(err))
						continue
					}
					if removed > 0 {
						log.Debug("swept expired rate limit windows", zap.Int64("removed", removed))
					}
				}
			}
		}
	case "memory":
		return ratelimit.NewMemoryStore(), nil
	default:
		return ratelimit.NewRedisStore(redis), nil
	}
}
