package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/quake-map-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Source documents.
	QuakeSourceURL        string
	PlateSourceURL        string
	SourceTimeout         time.Duration
	SourceRefreshInterval time.Duration

	// Timeline and playback.
	TimelineLocation *time.Location
	ColorScale       domain.ColorScale
	PlaybackInterval time.Duration
	PlaybackLoop     bool
	FrameCacheSize   int

	// Map view.
	MapCenterLat float64
	MapCenterLon float64
	MapZoom      int

	// Redis source cache, disabled when RedisAddr is empty.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SourceCacheTTL time.Duration

	// Kafka publishing.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaQuakeTopic string
	KafkaFrameTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := parsePositiveDuration("SOURCE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("SOURCE_REFRESH_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}
	playbackInterval, err := parsePositiveDuration("PLAYBACK_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("SOURCE_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	scale, err := domain.ParseColorScale(sharedcfg.EnvOrDefault("COLOR_SCALE", string(domain.ColorScaleDeepRed)))
	if err != nil {
		return nil, fmt.Errorf("invalid COLOR_SCALE: %w", err)
	}

	tz := sharedcfg.EnvOrDefault("TIMELINE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMELINE_TIMEZONE: %w", err)
	}

	frameCacheSize, err := parsePositiveInt("FRAME_CACHE_SIZE", "256")
	if err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", "0")
	if err != nil {
		return nil, err
	}
	zoom, err := parseInt("MAP_ZOOM", "5")
	if err != nil {
		return nil, err
	}
	lat, err := parseFloat("MAP_CENTER_LAT", "37.09")
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("MAP_CENTER_LON", "-95.71")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		QuakeSourceURL:        sharedcfg.EnvOrDefault("QUAKE_SOURCE_URL", "data/quakes.geojson"),
		PlateSourceURL:        sharedcfg.EnvOrDefault("PLATE_SOURCE_URL", "data/plates.geojson"),
		SourceTimeout:         sourceTimeout,
		SourceRefreshInterval: refresh,

		TimelineLocation: loc,
		ColorScale:       scale,
		PlaybackInterval: playbackInterval,
		PlaybackLoop:     parseBool("PLAYBACK_LOOP"),
		FrameCacheSize:   frameCacheSize,

		MapCenterLat: lat,
		MapCenterLon: lon,
		MapZoom:      zoom,

		RedisAddr:      sharedcfg.EnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:  sharedcfg.EnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:        redisDB,
		SourceCacheTTL: cacheTTL,

		KafkaEnabled:    parseBool("KAFKA_ENABLED"),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaQuakeTopic: sharedcfg.EnvOrDefault("KAFKA_QUAKE_TOPIC", "earthquake-events"),
		KafkaFrameTopic: sharedcfg.EnvOrDefault("KAFKA_FRAME_TOPIC", "earthquake-frames"),
	}

	if cfg.QuakeSourceURL == "" {
		return nil, errors.New("QUAKE_SOURCE_URL is required")
	}
	if cfg.PlateSourceURL == "" {
		return nil, errors.New("PLATE_SOURCE_URL is required")
	}
	if cfg.MapCenterLat < -90 || cfg.MapCenterLat > 90 {
		return nil, errors.New("MAP_CENTER_LAT must be within [-90, 90]")
	}
	if cfg.MapCenterLon < -180 || cfg.MapCenterLon > 180 {
		return nil, errors.New("MAP_CENTER_LON must be within [-180, 180]")
	}
	if cfg.MapZoom < 0 || cfg.MapZoom > 19 {
		return nil, errors.New("MAP_ZOOM must be within [0, 19]")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaQuakeTopic == "" {
			return nil, errors.New("KAFKA_QUAKE_TOPIC is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaFrameTopic == "" {
			return nil, errors.New("KAFKA_FRAME_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := parseDuration(name, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	return d, nil
}

func parseInt(name, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(name, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func parsePositiveInt(name, def string) (int, error) {
	n, err := parseInt(name, def)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseFloat(name, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}

func parseBool(name string) bool {
	switch strings.ToLower(sharedcfg.EnvOrDefault(name, "false")) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
