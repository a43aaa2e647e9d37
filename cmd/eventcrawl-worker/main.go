// Command eventcrawl-worker is the process entrypoint: it wires the
// pipeline's collaborators from config.Load(), starts the queue consumer
// and the inbound HTTP server, and shuts both down on SIGINT/SIGTERM,
// grounded on raito's cmd/raito-api/main.go wiring shape (config.Load,
// redis.ParseURL/NewClient from internal/http/router.go, a logger built
// once and threaded through) generalized with catchup-feed-backend's
// signal.NotifyContext graceful-shutdown pattern.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"eventcrawl/internal/aicost"
	"eventcrawl/internal/config"
	"eventcrawl/internal/deepfetch"
	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/httpapi"
	"eventcrawl/internal/ingest"
	"eventcrawl/internal/queue"
	"eventcrawl/internal/sourceconfig"
	"eventcrawl/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	q := queue.New(rdb)
	client := fetch.NewPoliteClient()
	budget := aicost.New(cfg.AIDailyBudget, cfg.AIMonthlyBudget)

	aiStage := extract.NewAIStage(extract.AIConfig{
		Enabled:         cfg.EnableAI,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
	}, budget)
	pipeline := extract.NewPipeline(aiStage)

	ingestClient := ingest.New(cfg.BackendURL, cfg.ServiceToken, cfg.RequestTimeout)

	sources, err := sourceconfig.Load(cfg.SourceRegistryPath)
	if err != nil {
		log.Fatalf("load source registry: %v", err)
	}
	logger.Info("source registry loaded", slog.Int("sources", len(sources.Sources)), slog.String("path", cfg.SourceRegistryPath))

	deepCfg := deepfetch.DefaultConfig()
	deepCfg.MaxConcurrentRequests = cfg.MaxConcurrentPerDomain

	workerDeps := worker.Deps{
		Client:         client,
		Pipeline:       pipeline,
		Ingest:         ingestClient,
		MaxDeepFetches: cfg.WorkerMaxDeepFetches,
	}
	crawlHandler := worker.NewCrawlHandler(workerDeps, sources, deepCfg)

	w := worker.New(q, cfg.WorkerPollInterval, cfg.WorkerMaxConcurrentJob)
	w.Register("crawl", crawlHandler.Handle)

	server := httpapi.NewServer(httpapi.Deps{
		Queue:    q,
		Crawl:    crawlHandler,
		Sources:  sources,
		Client:   client,
		Pipeline: pipeline,
		Budget:   budget,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("worker starting", slog.Duration("poll_interval", cfg.WorkerPollInterval), slog.Int("max_deep_fetches", cfg.WorkerMaxDeepFetches))
		w.Run(ctx, queue.QueueCrawl, queue.QueueClassify, queue.QueueScore, queue.QueueGeocode)
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping worker and http server")
		w.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("http server starting", slog.String("addr", addr))
	if err := server.Listen(addr); err != nil {
		logger.Error("http server stopped", slog.String("error", err.Error()))
	}
}

// newLogger builds the process logger per LOG_FORMAT, matching
// catchup-feed-backend's JSON handler option alongside raito's plain text
// default.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
