package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkarklins/voicegate/internal/app/migrate"
	"github.com/mkarklins/voicegate/internal/audio"
	"github.com/mkarklins/voicegate/internal/config"
	httpx "github.com/mkarklins/voicegate/internal/http"
	"github.com/mkarklins/voicegate/internal/logger"
	"github.com/mkarklins/voicegate/internal/repository/postgres"
	"github.com/mkarklins/voicegate/internal/service/auth"
	"github.com/mkarklins/voicegate/internal/similarity"
	"github.com/mkarklins/voicegate/internal/transcribe"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	store, err := audio.NewStore(cfg.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	whisper := transcribe.NewWhisper(transcribe.WhisperConfig{
		ServerURL: cfg.WhisperServerURL,
		BinPath:   cfg.WhisperBinPath,
		ModelPath: cfg.WhisperModelPath,
		Port:      cfg.WhisperPort,
		Language:  cfg.WhisperLanguage,
		Timeout:   cfg.TranscribeTimeout,
	}, log)
	defer whisper.Close()

	authSvc := auth.New(repo, store, whisper, similarity.Score, cfg.SimilarityThreshold, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, limiter, cfg.MaxUploadBytes, cfg.CORSAllowOrigin, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
