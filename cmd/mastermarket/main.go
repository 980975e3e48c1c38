package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mastermarket/mastermarket/internal/app"
	"github.com/mastermarket/mastermarket/internal/auth"
	"github.com/mastermarket/mastermarket/internal/catalog"
	"github.com/mastermarket/mastermarket/internal/community"
	"github.com/mastermarket/mastermarket/internal/observability"
	"github.com/mastermarket/mastermarket/internal/photos"
	"github.com/mastermarket/mastermarket/internal/places"
	"github.com/mastermarket/mastermarket/internal/platform/cache"
	"github.com/mastermarket/mastermarket/internal/platform/db"
	"github.com/mastermarket/mastermarket/internal/shared"
	"github.com/mastermarket/mastermarket/internal/summary"
	"github.com/mastermarket/mastermarket/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	var trendingCache *community.Cache
	if err != nil {
		logger.Warn("redis unavailable, trending cache disabled", slog.Any("error", err))
	} else {
		trendingCache = community.NewCache(redisClient, cfg.TrendingCacheTTL)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	verifier, err := auth.NewTokenVerifier(cfg.AuthTokenSecret)
	if err != nil {
		logger.Error("init token verifier", slog.Any("error", err))
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(verifier)

	metrics := observability.NewMetrics()

	catalogService := catalog.NewService(catalog.NewRepository(dbpool))
	communityService := community.NewService(
		community.NewRepository(dbpool),
		shared.NewActivityRecorder(dbpool),
		shared.NewIdempotencyStore(dbpool),
		trendingCache,
		community.NewMetrics(metrics.Registerer()),
		logger,
	)
	summaryService := summary.NewService(catalogService)

	photoStore := newPhotoStore(ctx, cfg, logger)
	placesClient := places.NewClient(places.Config{
		APIKey:        cfg.PlacesAPIKey,
		BaseURL:       cfg.PlacesBaseURL,
		Timeout:       cfg.PlacesTimeout,
		RatePerSecond: cfg.PlacesRatePerSec,
	}, logger)

	communityHandler := community.NewHandler(community.HandlerDeps{
		Logger:    logger,
		Service:   communityService,
		Barcodes:  catalogService,
		Photos:    photoStore,
		Extractor: photos.NewExtractor(),
		Stores:    placesClient,
		Require:   authMiddleware.Require,
		Optional:  authMiddleware.Optional,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = jobClient.Close()
	}()
	if _, err := jobClient.EnqueueTrendingWarmup(ctx, jobs.TrendingWarmupPayload{}); err != nil {
		logger.Warn("enqueue trending warmup", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		CommunityHandler: communityHandler,
		CatalogHandler:   catalog.NewHandler(logger, catalogService, authMiddleware.Require),
		SummaryHandler:   summary.NewHandler(logger, summaryService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Health: map[string]app.HealthCheck{
			"postgres": func(r *http.Request) error { return dbpool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// newPhotoStore returns a GCS-backed store, or nil when no bucket is
// configured. A nil store answers uploads with ErrUpstreamUnavailable.
func newPhotoStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) *photos.Store {
	if strings.TrimSpace(cfg.PhotoBucket) == "" {
		logger.Warn("PHOTO_BUCKET not set, photo uploads disabled")
		return nil
	}
	client, err := photos.NewGCSClient(ctx, cfg.PhotoCredentials)
	if err != nil {
		logger.Warn("init storage client, photo uploads disabled", slog.Any("error", err))
		return nil
	}
	uploader, err := photos.NewGCSUploader(client, cfg.PhotoBucket)
	if err != nil {
		logger.Warn("init photo uploader", slog.Any("error", err))
		return nil
	}
	return photos.NewStore(uploader, strings.TrimRight(cfg.PhotoPublicBaseURL, "/")+"/"+cfg.PhotoBucket, cfg.PhotoUploadTimeout)
}
