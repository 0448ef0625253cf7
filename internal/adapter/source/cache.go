package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// ErrCacheMiss is returned by a Store when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "quake-map:source:"

// Fetcher is the interface CachedFetcher decorates. *Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, name, location string) ([]byte, error)
}

// Store is a byte-oriented cache with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedFetcher serves documents from a Store and falls through to the
// wrapped Fetcher on a miss. Store failures degrade to a direct fetch.
type CachedFetcher struct {
	inner   Fetcher
	store   Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedFetcher wraps inner with a cache of the given TTL.
func NewCachedFetcher(inner Fetcher, store Store, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch returns the cached document for location or fetches and stores it.
func (c *CachedFetcher) Fetch(ctx context.Context, name, location string) ([]byte, error) {
	key := cacheKey(location)

	body, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.SourceCache.WithLabelValues("hit").Inc()
		c.logger.Debug("source cache hit", "source", name)
		return body, nil
	case errors.Is(err, ErrCacheMiss):
		c.metrics.SourceCache.WithLabelValues("miss").Inc()
	default:
		c.metrics.SourceCache.WithLabelValues("error").Inc()
		c.logger.Warn("source cache read failed", "source", name, "error", err)
	}

	body, err = c.inner.Fetch(ctx, name, location)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Warn("source cache write failed", "source", name, "error", err)
	}
	return body, nil
}

func cacheKey(location string) string {
	sum := sha256.Sum256([]byte(location))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis. The connection is lazy; use Ping to verify it.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

// Get returns the value at key or ErrCacheMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

// Set stores value at key with the given expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
