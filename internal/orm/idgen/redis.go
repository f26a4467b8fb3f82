// Package idgen provides durable counter stores the engine can use in place
// of the generator table of the database.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every counter key
const DefaultPrefix = "entitymanager:generator:"

// ErrInvalidSeed is returned when a counter is seeded below 1
var ErrInvalidSeed = errors.New("counter seed must be at least 1")

// RedisStore keeps one counter per entity type in Redis
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// RedisConfig holds the Redis connection and key settings
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to the counter names
	Prefix string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: DefaultPrefix,
	}
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewRedisStoreWithClient(client, config.Prefix), nil
}

// NewRedisStoreWithClient creates a store over an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, config: RedisConfig{Prefix: prefix}}
}

func (r *RedisStore) key(name string) string {
	return r.config.Prefix + name
}

// Next increments the counter name and returns its new value. A missing
// counter starts at 1.
func (r *RedisStore) Next(ctx context.Context, name string) (int64, error) {
	next, err := r.client.Incr(ctx, r.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return next, nil
}

// Current returns the last value handed out for name, zero when none was
func (r *RedisStore) Current(ctx context.Context, name string) (int64, error) {
	value, err := r.client.Get(ctx, r.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// Seed makes next the value returned by the following call to Next, used
// when moving counters out of an existing generator table
func (r *RedisStore) Seed(ctx context.Context, name string, next int64) error {
	if next < 1 {
		return fmt.Errorf("%w: %s %d", ErrInvalidSeed, name, next)
	}
	return r.client.Set(ctx, r.key(name), next-1, 0).Err()
}

// Reset removes the counter name
func (r *RedisStore) Reset(ctx context.Context, name string) error {
	return r.client.Del(ctx, r.key(name)).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
