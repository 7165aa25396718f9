package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type releaseValue struct {
	DeliveryID string    `json:"deliveryId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

func (c *RedisCache) StoreReleased(ctx context.Context, checkinID, deliveryID string, releasedAt time.Time) error {
	key := fmt.Sprintf("release:%s", checkinID)
	val := releaseValue{
		DeliveryID: deliveryID,
		ReleasedAt: releasedAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
