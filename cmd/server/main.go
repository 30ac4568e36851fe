package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/whatscrm/server/cmd/mainconfig"
	"github.com/whatscrm/server/internal/api/router"
	"github.com/whatscrm/server/internal/classify"
	appconfig "github.com/whatscrm/server/internal/config"
	"github.com/whatscrm/server/internal/dedup"
	"github.com/whatscrm/server/internal/engine"
	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/http/handlers"
	"github.com/whatscrm/server/internal/jobs"
	"github.com/whatscrm/server/internal/media"
	"github.com/whatscrm/server/internal/observability/metrics"
	"github.com/whatscrm/server/internal/schedule"
	"github.com/whatscrm/server/internal/store"
	"github.com/whatscrm/server/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatscrm server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := store.New(pool)

	guard := buildGuard(ctx, cfg, logger)
	client := greenapi.NewClient(cfg.GreenAPIBaseURL, logger)
	classifier := buildClassifier(ctx, cfg, logger)

	archiver := buildArchiver(ctx, cfg, db, client, logger)
	var engineArchiver engine.MediaArchiver
	if archiver != nil {
		engineArchiver = archiver
	}
	scheduler := schedule.New(db, cfg.SlotDurationMinutes)

	messagingMetrics := metrics.NewMessagingMetrics(nil)
	eng := engine.New(db, client, classifier, guard, engineArchiver, scheduler, engine.Config{
		PublicBaseURL:     cfg.PublicBaseURL,
		LeadValidity:      cfg.LeadValidity,
		CorrespondenceTTL: cfg.CorrespondenceTTL,
		Metrics:           messagingMetrics,
	}, logger)
	r := router.New(&router.Config{
		Logger:               logger,
		Webhook:              handlers.NewWhatsAppWebhookHandler(eng, messagingMetrics, logger),
		QuotePages:           handlers.NewQuotePageHandler(eng, logger),
		Appointments:         handlers.NewAppointmentHandler(eng, logger),
		Ops:                  handlers.NewOpsHandler(eng, archiverOrNil(archiver), cfg.Env, logger),
		MetricsHandler:       promhttp.Handler(),
		OpsRequestsPerSecond: 5,
	})

	if archiver != nil {
		go jobs.NewMediaSweep(archiver, logger).WithInterval(cfg.MediaSweepEvery).Run(ctx)
	}
	go jobs.NewOwnerReminder(db, client, cfg.ReminderWindowStart, cfg.ReminderWindowEnd, logger).Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildGuard prefers Redis-backed dedup; without REDIS_ADDR each instance
// falls back to its own in-process guard.
func buildGuard(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) dedup.Guard {
	if cfg.RedisAddr == "" {
		logger.Info("dedup: using in-memory guard")
		return dedup.NewMemoryGuard(cfg.DedupTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("dedup: redis unreachable, using in-memory guard", "error", err)
		return dedup.NewMemoryGuard(cfg.DedupTTL)
	}
	return dedup.NewRedisGuard(client, cfg.DedupTTL, logger)
}

// buildClassifier picks Gemini, then OpenAI, then keywords alone; LLM
// classifiers always carry the keyword fallback.
func buildClassifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) classify.Classifier {
	if cfg.GeminiAPIKey != "" {
		gemini, err := classify.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err == nil {
			logger.Info("classifier: gemini", "model", cfg.GeminiModelID)
			return classify.NewFallbackClassifier(gemini, logger)
		}
		logger.Error("classifier: gemini init failed", "error", err)
	}
	if cfg.OpenAIAPIKey != "" {
		openai, err := classify.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
		if err == nil {
			logger.Info("classifier: openai", "model", cfg.OpenAIModelID)
			return classify.NewFallbackClassifier(openai, logger)
		}
		logger.Error("classifier: openai init failed", "error", err)
	}
	logger.Info("classifier: keywords only")
	return classify.NewKeywordClassifier()
}

// buildArchiver wires the S3 media archiver; without a bucket it still
// records metadata so photo counting works.
func buildArchiver(ctx context.Context, cfg *appconfig.Config, db *store.Store, client *greenapi.Client, logger *logging.Logger) *media.Archiver {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("media: AWS config failed, archiving disabled", "error", err)
		return nil
	}
	s3Client := mainconfig.NewS3Client(awsCfg, cfg)
	return media.New(s3Client, cfg.MediaBucket, client, db, cfg.MediaRetention, logger)
}

func archiverOrNil(a *media.Archiver) handlers.MediaSweeper {
	if a == nil {
		return nil
	}
	return a
}
