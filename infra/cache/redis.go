package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/infra/logger"
)

// Config defines the Redis connection for the score cache.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// KeyPrefix namespaces score keys, default "expeditor:score:".
	KeyPrefix string `json:"key_prefix"`
}

// RedisCache implements priority.Cache on a Redis backend. TTL handling is
// delegated to Redis key expiry; errors degrade to cache misses so scoring
// always proceeds.
type RedisCache struct {
	cli    *redis.Client
	prefix string
	log    logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg Config) (*RedisCache, error) {
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "expeditor:score:"
	}
	return &RedisCache{cli: cli, prefix: prefix, log: logger.New("redis-cache")}, nil
}

func (c *RedisCache) key(itemID string) string { return c.prefix + itemID }

func (c *RedisCache) Get(itemID string) (priority.ItemScore, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.cli.Get(ctx, c.key(itemID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnf("get %s: %v", itemID, err)
		}
		c.misses.Add(1)
		return priority.ItemScore{}, false
	}
	var score priority.ItemScore
	if err := json.Unmarshal(raw, &score); err != nil {
		c.log.Warnf("decode %s: %v", itemID, err)
		c.misses.Add(1)
		return priority.ItemScore{}, false
	}
	c.hits.Add(1)
	return score, true
}

func (c *RedisCache) Set(itemID string, score priority.ItemScore, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(score)
	if err != nil {
		c.log.Errorf("encode %s: %v", itemID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.cli.Set(ctx, c.key(itemID), raw, ttl).Err(); err != nil {
		c.log.Warnf("set %s: %v", itemID, err)
	}
}

func (c *RedisCache) Expire(itemID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.cli.Del(ctx, c.key(itemID)).Err(); err != nil {
		c.log.Warnf("expire %s: %v", itemID, err)
	}
}

func (c *RedisCache) Stats() priority.CacheStats {
	return priority.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.cli.Close() }
