package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/weatherbot/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "weatherbot:weather:"

// CachedProvider wraps a Provider with a Redis read-through cache. Failed
// lookups are never cached, and cache errors fall through to the provider.
type CachedProvider struct {
	next   Provider
	rdb    redis.Cmdable
	ttl    time.Duration
	scope  string
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewCachedProvider caches results of next for ttl. scope separates entries
// produced with different provider settings, such as the response language.
func NewCachedProvider(next Provider, rdb redis.Cmdable, ttl time.Duration, scope string, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		scope:  scope,
		logger: logger,
	}
}

func (p *CachedProvider) key(op, location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	return cachePrefix + p.scope + ":" + op + ":" + loc
}

// Current returns cached current weather or fetches and caches it.
func (p *CachedProvider) Current(ctx context.Context, location string) (*Current, error) {
	key := p.key("current", location)
	var cur Current
	if p.lookup(ctx, key, &cur) {
		return &cur, nil
	}

	fresh, err := p.next.Current(ctx, location)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, fresh)
	return fresh, nil
}

// Forecast returns a cached forecast or fetches and caches it.
func (p *CachedProvider) Forecast(ctx context.Context, location string) (*Forecast, error) {
	key := p.key("forecast", location)
	var fc Forecast
	if p.lookup(ctx, key, &fc) {
		return &fc, nil
	}

	fresh, err := p.next.Forecast(ctx, location)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, fresh)
	return fresh, nil
}

func (p *CachedProvider) lookup(ctx context.Context, key string, out interface{}) bool {
	data, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		p.logger.Warn("weather cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		p.logger.Warn("weather cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return true
}

func (p *CachedProvider) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		p.logger.Warn("weather cache write failed", zap.String("key", key), zap.Error(err))
	}
}
