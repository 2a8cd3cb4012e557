package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/cache"
	"github.com/nikhilbhutani/accentcoach/internal/config"
	"github.com/nikhilbhutani/accentcoach/internal/database"
	"github.com/nikhilbhutani/accentcoach/internal/history"
	"github.com/nikhilbhutani/accentcoach/internal/observe"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
	"github.com/nikhilbhutani/accentcoach/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "accentcoach-worker"})
	if err != nil {
		slog.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer provider.Shutdown(context.Background())
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	detector, err := accent.NewFromConfig(cfg, accent.WithRecorder(metrics))
	if err != nil {
		slog.Error("failed to build accent detector", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	jobs := queue.NewJobStore(cache.NewCache(rdb), queue.DefaultJobTTL)

	var hist workers.HistorySaver
	if db, err := database.NewPool(ctx, cfg.Database); err != nil {
		slog.Warn("database unavailable, job results will not be kept in history", "error", err)
	} else {
		defer db.Close()
		hist = history.NewStore(db)
	}

	var metricsSrv *http.Server
	if cfg.Worker.MetricsAddr != "" {
		metricsSrv = provider.Server(cfg.Worker.MetricsAddr)
		go func() {
			slog.Info("serving worker metrics", "addr", cfg.Worker.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener error", "error", err)
			}
		}()
	}

	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), queue.ServerConfig(cfg.Worker.Concurrency))

	registry := queue.NewHandlersRegistry()
	detectionWorker := workers.NewDetectionWorker(detector, jobs, hist)
	registry.Register(queue.TypeAccentDetect, asynq.HandlerFunc(detectionWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency)
	runErr := srv.Run(registry.Mux())

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics listener shutdown", "error", err)
		}
		cancel()
	}
	if runErr != nil {
		slog.Error("worker error", "error", runErr)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
