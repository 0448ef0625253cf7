package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/quake-map-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-map-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-map-service/internal/adapter/source"
	"github.com/couchcryptid/quake-map-service/internal/catalog"
	"github.com/couchcryptid/quake-map-service/internal/config"
	"github.com/couchcryptid/quake-map-service/internal/observability"
	"github.com/couchcryptid/quake-map-service/internal/pipeline"
	"github.com/couchcryptid/quake-map-service/internal/playback"
)

func main() {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Source fetcher, optionally fronted by the Redis document cache.
	var fetcher pipeline.SourceFetcher = source.NewClient(cfg.SourceTimeout, metrics, logger)
	var redisStore *source.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = source.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, source cache will fall back to direct fetches", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		fetcher = source.NewCachedFetcher(fetcher, redisStore, cfg.SourceCacheTTL, metrics, logger)
		logger.Info("source cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SourceCacheTTL)
	} else {
		logger.Info("source cache disabled")
	}

	// Kafka publishing (feature-flagged via KAFKA_ENABLED).
	var (
		writer    *kafkaadapter.Writer
		publisher pipeline.QuakePublisher
		sink      playback.FrameSink
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		publisher = writer
		sink = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers,
			"quake_topic", cfg.KafkaQuakeTopic, "frame_topic", cfg.KafkaFrameTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	cat := catalog.New(cfg.TimelineLocation, cfg.FrameCacheSize, metrics)
	player := playback.NewPlayer(cat, playback.Options{
		BaseInterval: cfg.PlaybackInterval,
		Loop:         cfg.PlaybackLoop,
		Sink:         sink,
	}, logger, metrics)
	cat.OnReplace(player.Reset)

	p := pipeline.New(
		fetcher,
		pipeline.NewDecoder(logger),
		cat,
		publisher,
		pipeline.Sources{QuakeURL: cfg.QuakeSourceURL, PlateURL: cfg.PlateSourceURL},
		cfg.SourceRefreshInterval,
		logger,
		metrics,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Dependencies{
		Ready:   cat,
		Catalog: cat,
		Player:  player,
		Map: httpadapter.MapSettings{
			CenterLat: cfg.MapCenterLat,
			CenterLon: cfg.MapCenterLon,
			Zoom:      cfg.MapZoom,
			Scale:     cfg.ColorScale,
		},
		Metrics: metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start load pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Closing the player ends playback streams so the server can drain.
	player.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
