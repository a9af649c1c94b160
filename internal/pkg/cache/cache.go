package cache

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	fiberredis "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
)

// limiterDatabase keeps rate limiter counters apart from locks and jobs
const limiterDatabase = 1

var client *redis.Client

// SetupCache initializes the connection to the Redis server. Without a configured
// host the cache stays disabled and callers fall back to in-process alternatives.
func SetupCache(cfg config.RedisConf) *redis.Client {
	if !cfg.Enabled() {
		log.Info("[Cache] No redis host configured, cache disabled")
		return nil
	}

	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to redis at %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Connected to redis at %s: %s", cfg.Addr(), pong)
	}
	return client
}

// GetClient returns the Redis client instance, nil when the cache is disabled
func GetClient() *redis.Client {
	return client
}

// Enabled reports whether a Redis client was set up
func Enabled() bool {
	return client != nil
}

// Set stores a value in the cache with the given key and expiration time
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if client == nil {
		return nil
	}
	return client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key. Misses return redis.Nil.
func Get(ctx context.Context, key string) (string, error) {
	if client == nil {
		return "", redis.Nil
	}
	return client.Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(ctx context.Context, key string) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, key).Err()
}

// NewLimiterStorage returns a fiber storage backed by Redis for the rate limiter,
// nil when the cache is disabled (the limiter then counts in memory).
func NewLimiterStorage(cfg config.RedisConf) fiber.Storage {
	if !cfg.Enabled() {
		return nil
	}
	return fiberredis.New(fiberredis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
