package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/storefront/services/orders/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}

	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}

	return nil
}

// DeleteByPrefix drops every key under a prefix. Used to invalidate
// cached order listings after any order mutation.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	if !c.enabled {
		return nil
	}

	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "failed to delete cached key")
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "failed to scan cached keys")
	}

	return nil
}

// OrderListKeyPrefix is the key prefix for cached order listings
const OrderListKeyPrefix = "orders:list:"

// GetOrderListKey generates a cache key for one page of the order list
func GetOrderListKey(status, orderType string, page, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", OrderListKeyPrefix, status, orderType, page, limit)
}

// GetOrderCacheKey generates a cache key for a single order
func GetOrderCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("order:%s", id.String())
}

// GetInvoiceCacheKey generates a cache key for a single invoice
func GetInvoiceCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("invoice:%s", id.String())
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}

	return c.client.Close()
}
