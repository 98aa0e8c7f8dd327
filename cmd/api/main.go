package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/config"
	"github.com/voltmap/voltmap-go/internal/crypto"
	"github.com/voltmap/voltmap-go/internal/handler"
	"github.com/voltmap/voltmap-go/internal/keepalive"
	"github.com/voltmap/voltmap-go/internal/logging"
	"github.com/voltmap/voltmap-go/internal/middleware"
	"github.com/voltmap/voltmap-go/internal/repository"
	"github.com/voltmap/voltmap-go/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", zap.String("driver", db.Driver()))

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	users := repository.NewUserRepository(db)
	hasher := crypto.NewPasswordHasher(crypto.DefaultHashParams())
	tokens := crypto.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpiresIn)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:           service.NewAuthService(service.NewCredentials(users, hasher), users, tokens),
		Stations:       service.NewStationService(repository.NewStationRepository(db)),
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Health:         db.PingContext,
		Logger:         logger,
	})

	pinger, err := keepalive.New(cfg.KeepAlive.URL, cfg.KeepAlive.Schedule, nil, logger.Named("keepalive"))
	if err != nil {
		return err
	}
	pinger.Start()
	defer pinger.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newLimiter returns a Redis-backed limiter when REDIS_ADDR is set so every
// instance shares one budget, otherwise an in-process one.
func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (middleware.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		l := middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		return l, l.Close, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("rate limiter using redis", zap.String("addr", cfg.Redis.Addr))

	l := middleware.NewRedisLimiter(client, cfg.RateLimit.Burst, cfg.RateLimit.Window())
	return l, func() { client.Close() }, nil
}
