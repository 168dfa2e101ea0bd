package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Key patterns used by the suggestion cache. The argument is the route hash,
// or the minute stamp for the rate counter.
const (
	SuggestionKeyPattern = "seo:suggestion:%s"
	StaleKeyPattern      = "seo:stale:%s"
	LockKeyPattern       = "seo:lock:%s"
	RateKeyPattern       = "seo:rate:%s"
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Redis is a Store backed by a shared redis instance, so the lock, the rate
// counter and cached payloads are visible across gateway processes.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(config Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (c *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Redis) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	// Set expiration on first increment
	if count == 1 && expiration > 0 {
		if err := c.client.Expire(ctx, key, expiration).Err(); err != nil {
			return count, fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}
	return count, nil
}

// Client returns the redis client for pub/sub consumers.
func (c *Redis) Client() *redis.Client {
	return c.client
}

func (c *Redis) Close() error {
	return c.client.Close()
}
