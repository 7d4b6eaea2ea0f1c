/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for SWARM lookups.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/swarm"
	"github.com/friendsincode/tokencast/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultAnalysisTTL = 5 * time.Minute
	DefaultQueryTTL    = 2 * time.Minute
)

// Key prefixes for Redis cache
const (
	keyPrefix   = "tokencast:cache:"
	KeyAnalysis = keyPrefix + "analysis:" // + TICKER:address
	KeyQuery    = keyPrefix + "query:"    // + sha256(ticker, question)
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AnalysisTTL time.Duration
	QueryTTL    time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		AnalysisTTL:    DefaultAnalysisTTL,
		QueryTTL:       DefaultQueryTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.AnalysisTTL <= 0 {
		cfg.AnalysisTTL = DefaultAnalysisTTL
	}
	if cfg.QueryTTL <= 0 {
		cfg.QueryTTL = DefaultQueryTTL
	}
	if cfg.RedisAddr == "" {
		logger.Info().Msg("no redis address, running without caching")
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		telemetry.CacheRequestsTotal.WithLabelValues("error").Inc()
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false, nil
	}

	telemetry.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS so large keyspaces do not block Redis.
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// AnalysisKey returns the cache key for a token analysis.
func AnalysisKey(ticker, address string) string {
	return KeyAnalysis + strings.ToUpper(strings.TrimSpace(ticker)) + ":" + strings.TrimSpace(address)
}

// QueryKey returns the cache key for a free-form query.
func QueryKey(question, ticker string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(ticker) + "\x00" + question))
	return KeyQuery + hex.EncodeToString(sum[:16])
}

// GetAnalysis retrieves a cached token analysis.
func (c *Cache) GetAnalysis(ctx context.Context, ticker, address string) (*swarm.Analysis, bool) {
	var a swarm.Analysis
	found, err := c.get(ctx, AnalysisKey(ticker, address), &a)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("ticker", ticker).Msg("analysis cache hit")
	return &a, true
}

// SetAnalysis caches a token analysis under the ticker and address it was
// requested with.
func (c *Cache) SetAnalysis(ctx context.Context, ticker, address string, a *swarm.Analysis) error {
	return c.set(ctx, AnalysisKey(ticker, address), a, c.config.AnalysisTTL)
}

// GetQuery retrieves a cached query result.
func (c *Cache) GetQuery(ctx context.Context, question, ticker string) (*swarm.QueryResult, bool) {
	var r swarm.QueryResult
	found, err := c.get(ctx, QueryKey(question, ticker), &r)
	if err != nil || !found {
		return nil, false
	}
	return &r, true
}

// SetQuery caches a query result.
func (c *Cache) SetQuery(ctx context.Context, question, ticker string, r *swarm.QueryResult) error {
	return c.set(ctx, QueryKey(question, ticker), r, c.config.QueryTTL)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, keyPrefix+"*")
}
