package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tnqbao/gau-ml-service/config"
)

var ErrCacheMiss = errors.New("key not found in cache")

type RedisClient struct {
	Client *redis.Client
}

func InitRedisClient(cfg *config.EnvConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisHost + ":" + cfg.Redis.RedisPort,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Connected to Redis:", cfg.Redis.RedisPort+" on "+cfg.Redis.RedisHost)

	return &RedisClient{Client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// PollCache keeps the last status payload of a remote job for a short TTL so
// bursts of status requests for the same job hit the provider once.
type PollCache struct {
	redis  *RedisClient
	ttl    time.Duration
	logger *LoggerClient
}

func NewPollCache(redis *RedisClient, ttl time.Duration, logger *LoggerClient) *PollCache {
	return &PollCache{redis: redis, ttl: ttl, logger: logger}
}

func pollCacheKey(kind EndpointKind, remoteID string) string {
	return fmt.Sprintf("ml:poll:%s:%s", kind, remoteID)
}

// Get reports a miss on any cache failure; callers fall back to a live poll.
func (c *PollCache) Get(ctx context.Context, kind EndpointKind, remoteID string) (json.RawMessage, bool) {
	if c == nil || c.redis == nil || c.ttl <= 0 {
		return nil, false
	}

	var raw json.RawMessage
	if err := c.redis.Get(ctx, pollCacheKey(kind, remoteID), &raw); err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WarningWithContextf(ctx, "[PollCache] Read failed for %s/%s: %v", kind, remoteID, err)
		}
		return nil, false
	}
	return raw, true
}

func (c *PollCache) Set(ctx context.Context, kind EndpointKind, remoteID string, raw json.RawMessage) {
	if c == nil || c.redis == nil || c.ttl <= 0 {
		return
	}
	if err := c.redis.Set(ctx, pollCacheKey(kind, remoteID), raw, c.ttl); err != nil {
		c.logger.WarningWithContextf(ctx, "[PollCache] Write failed for %s/%s: %v", kind, remoteID, err)
	}
}
