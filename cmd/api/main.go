package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/api"
	"github.com/nikhilbhutani/accentcoach/internal/api/handlers"
	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/cache"
	"github.com/nikhilbhutani/accentcoach/internal/config"
	"github.com/nikhilbhutani/accentcoach/internal/database"
	"github.com/nikhilbhutani/accentcoach/internal/history"
	"github.com/nikhilbhutani/accentcoach/internal/llm"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/tts"
	"github.com/nikhilbhutani/accentcoach/internal/observe"
	"github.com/nikhilbhutani/accentcoach/internal/pronunciation"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
	"github.com/nikhilbhutani/accentcoach/internal/translation"
	"github.com/nikhilbhutani/accentcoach/migrations"
)

var version = "dev"

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

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	readiness := map[string]handlers.Pinger{}
	svc := api.Services{
		Metrics:        metrics,
		MetricsHandler: provider.Handler(),
		Readiness:      readiness,
	}

	// Database connection (optional: without it there is no detection history)
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, running without history", "error", err)
	} else {
		defer db.Close()
		var schema fs.FS = migrations.FS
		if cfg.Database.MigrationsPath != "" {
			schema = os.DirFS(cfg.Database.MigrationsPath)
		}
		if err := database.RunMigrations(ctx, db, schema); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		readiness["database"] = db
		svc.History = history.NewStore(db)
	}

	// Redis connection (optional: falls back to an in-process cache and no jobs)
	var store cache.Store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, using in-memory cache without async jobs", "error", err)
		store = cache.NewMemory(1024, cfg.Translation.CacheTTL)
	} else {
		redisCache := cache.NewCache(rdb)
		store = redisCache
		readiness["redis"] = redisCache

		queueClient := queue.NewClient(cfg.Redis)
		defer queueClient.Close()
		svc.Jobs = queue.NewJobStore(redisCache, queue.DefaultJobTTL)
		svc.Enqueuer = queueClient
	}

	svc.Detector, err = accent.NewFromConfig(cfg, accent.WithRecorder(metrics))
	if err != nil {
		slog.Error("failed to build accent detector", "error", err)
		os.Exit(1)
	}

	svc.Pronunciation, err = newPronunciation(cfg)
	if err != nil {
		slog.Error("failed to build pronunciation service", "error", err)
		os.Exit(1)
	}

	svc.TTS, err = tts.New(cfg.TTS)
	if err != nil {
		slog.Error("failed to build speech synthesizer", "error", err)
		os.Exit(1)
	}

	svc.Translator = translation.NewService(llm.NewGateway(cfg.LLM), store, cfg.Translation)

	router := api.NewRouter(cfg, svc)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// newPronunciation serves transcription on the configured recognizer.
// Assessment needs Azure and is switched off without a key.
func newPronunciation(cfg *config.Config) (*pronunciation.Service, error) {
	rec, err := stt.New(cfg.Speech)
	if err != nil {
		return nil, err
	}
	normalizer, err := audio.NewNormalizerFromConfig(cfg.Audio)
	if err != nil {
		return nil, err
	}
	assessor, err := stt.NewAssessor(cfg.Speech)
	if err != nil {
		slog.Warn("pronunciation assessment disabled", "error", err)
	}
	return pronunciation.NewService(rec, assessor, normalizer), nil
}
