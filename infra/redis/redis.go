package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var cacheLatency metric.Float64Histogram

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("redis: cache miss")

// Cache is a thin TTL-only wrapper over go-redis. Every write carries a TTL;
// there are deliberately no methods to set a key forever.
type Cache struct {
	client *redis.Client
}

func New(ctx context.Context, dsn string) (*Cache, error) {
	var err error
	meter := otel.Meter("redis")
	cacheLatency, err = meter.Float64Histogram("cache.command.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("redis: create cache.command.latency instrument: %w", err)
	}

	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) Health(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Cache) instrument(ctx context.Context, cmd string, start time.Time, err error) {
	cacheLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("cache.command", cmd)))
	if err != nil && !errors.Is(err, ErrMiss) {
		_, span := otel.Tracer("redis").Start(ctx, "cache."+cmd)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache command failed")
		span.End()
	}
}

// Get returns the string value at key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		err = ErrMiss
	}
	c.instrument(ctx, "get", start, err)
	return val, err
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	n, err := c.client.Exists(ctx, key).Result()
	c.instrument(ctx, "exists", start, err)
	return n > 0, err
}

// Set writes key with a mandatory TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis: refusing to set %q without TTL", key)
	}
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	c.instrument(ctx, "set", start, err)
	return err
}

// SetNX writes key only if absent; reports whether the write happened.
// Used for the reminder dedup keys where first-writer-wins matters.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("redis: refusing to set %q without TTL", key)
	}
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	c.instrument(ctx, "setnx", start, err)
	return ok, err
}

// Del removes key. Missing keys are not an error.
func (c *Cache) Del(ctx context.Context, key string) error {
	start := time.Now()
	err := c.client.Del(ctx, key).Err()
	c.instrument(ctx, "del", start, err)
	return err
}
