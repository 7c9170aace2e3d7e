package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"streamqueue/internal/api"
	"streamqueue/internal/config"
	"streamqueue/internal/database"
	"streamqueue/internal/domain"
	"streamqueue/internal/events"
	"streamqueue/internal/google"
	"streamqueue/internal/logging"
	"streamqueue/internal/metrics"
	"streamqueue/internal/queue"
	"streamqueue/internal/repository"
	"streamqueue/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sheetsService := initGoogleSheets(cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := buildStateCache(cfg, redisClient, &logger)
	bus := events.NewEventBus()
	subscribeCacheInvalidation(bus, cache, &logger)

	historyWorker := worker.NewHistoryWorker(db, sheetsWriter(sheetsService), redisClient,
		worker.RetryPolicy{MaxRetries: cfg.Worker.MaxRetries}, &logger)
	historyWorker.SetPollInterval(time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second)
	historyWorker.SetBatchSize(cfg.Worker.BatchSize)
	go historyWorker.Start(ctx)

	engine := queue.NewEngine(db, bus, historyWorker, &logger)
	registry := queue.NewRegistry(db, bus, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg, db, engine, registry, cache, &logger)
	return serve(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Sheets.CredentialsFile == "" || cfg.Sheets.SpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).
			Str("service_account", sheetsService.ServiceAccountEmail()).
			Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	logger.Info().
		Str("service_account", sheetsService.ServiceAccountEmail()).
		Msg("google sheets connected")
	return sheetsService
}

// sheetsWriter avoids handing the worker a non-nil interface holding a nil
// concrete pointer.
func sheetsWriter(svc *google.SheetsService) worker.SheetsWriter {
	if svc == nil {
		return nil
	}
	return svc
}

// buildStateCache assembles the overlay cache: redis backed by memory when
// redis is configured, memory alone otherwise.
func buildStateCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.StateCache {
	ttl := time.Duration(cfg.Overlay.CacheTTLSeconds) * time.Second
	memory := repository.NewMemoryStateCache(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateCache(repository.NewRedisStateCache(redisClient, ttl), memory, logger)
}

// subscribeCacheInvalidation drops the cached overlay state whenever the
// queue changes so the next poll sees fresh data within one cycle.
func subscribeCacheInvalidation(bus *events.EventBus, cache domain.StateCache, logger *zerolog.Logger) {
	invalidate := func(event *events.Event) error {
		var payload events.QueueEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.ShopID == "" {
			return nil
		}
		if err := cache.Invalidate(context.Background(), payload.ShopID); err != nil {
			logger.Debug().Err(err).Str("shop_id", payload.ShopID).Msg("cache invalidation failed")
		}
		return nil
	}

	for _, eventType := range []string{
		events.EventEntryEnqueued,
		events.EventQueueAdvanced,
		events.EventEntrySkipped,
		events.EventQueueReset,
		events.EventEntryRemoved,
		events.EventActionUndone,
		events.EventShopDeleted,
	} {
		bus.Subscribe(eventType, invalidate)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
