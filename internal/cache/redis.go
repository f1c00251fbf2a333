package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepmind/prepmind-backend/internal/logger"
)

const redisKeyPrefix = "pm:cache:"

type redisCache struct {
	log *logger.Logger
	rdb *redis.Client
}

func NewRedisCache(log *logger.Logger, addr string) Cache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &redisCache{
		log: log.With("service", "RedisCache"),
		rdb: rdb,
	}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, redisKeyPrefix+key, val, ttl).Err()
}

func (c *redisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
