package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"inventorypro/backend/internal/domain"
)

const keyPrefix = "inventorypro:view:"

type RedisInventoryViewCache struct {
	client *redis.Client
}

func NewRedisInventoryViewCache(addr string, password string, db int) *RedisInventoryViewCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisInventoryViewCache{client: client}
}

func (c *RedisInventoryViewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisInventoryViewCache) Close() error {
	return c.client.Close()
}

func (c *RedisInventoryViewCache) Get(ctx context.Context, key string) ([]domain.InventoryItem, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []domain.InventoryItem
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *RedisInventoryViewCache) Set(ctx context.Context, key string, items []domain.InventoryItem, ttl time.Duration) error {
	if items == nil {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

func (c *RedisInventoryViewCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, keyPrefix+key)
	}
	return c.client.Del(ctx, prefixed...).Err()
}
