package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/cowhealth/internal/application"
	appai "github.com/bryanwahyu/cowhealth/internal/application/ai"
	"github.com/bryanwahyu/cowhealth/internal/application/analysis"
	apphistory "github.com/bryanwahyu/cowhealth/internal/application/history"
	"github.com/bryanwahyu/cowhealth/internal/config"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/provider"
	"github.com/bryanwahyu/cowhealth/internal/infra/db"
	"github.com/bryanwahyu/cowhealth/internal/infra/httpserver"
	"github.com/bryanwahyu/cowhealth/internal/infra/image"
	minioStore "github.com/bryanwahyu/cowhealth/internal/infra/storage"
	"github.com/bryanwahyu/cowhealth/internal/logging"
	"github.com/bryanwahyu/cowhealth/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	model, err := provider.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ai provider: %w", err)
	}
	caller := appai.NewCaller(model, logger.Named("ai"))
	pipeline := analysis.NewPipeline(caller, logger.Named("pipeline"))

	checkers := map[string]middleware.HealthChecker{}

	repo, conn, err := db.OpenHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
		checkers["database"] = middleware.PingDB(conn)
	}

	hist := &apphistory.Service{
		Repo:   repo,
		Caller: caller,
		Clock:  application.SystemClock{},
		Log:    logger.Named("history"),
	}
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		hist.Images = store
		checkers["images"] = middleware.CheckerFunc(store.Ping)
	}

	var limiter middleware.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
		checkers["redis"] = middleware.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		local := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
		defer local.Close()
		limiter = local
	}

	opts := httpserver.Options{
		Analyzer:       pipeline,
		Intake:         image.NewIntake(cfg.Image.MaxBytes, cfg.Image.AllowedFormats, logger.Named("image")),
		Metrics:        middleware.NewMetrics(),
		Limiter:        limiter,
		Checkers:       checkers,
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            logger.Named("http"),
	}
	if cfg.History.Enabled || cfg.Database.Driver != "" {
		opts.History = hist
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("provider", cfg.AI.Provider),
			zap.String("history", historyMode(cfg, opts.History != nil)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func historyMode(cfg *config.Config, enabled bool) string {
	switch {
	case !enabled:
		return "off"
	case cfg.Database.Driver == "":
		return "memory"
	default:
		return cfg.Database.Driver
	}
}
