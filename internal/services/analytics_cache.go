package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard/backend/internal/config"
)

// AnalyticsCache wraps a TaskCounter with a Redis read-through cache. Entries
// are evicted by the event processor whenever a project's tasks change.
type AnalyticsCache struct {
	base  TaskCounter
	redis *redis.Client
	ttl   time.Duration
}

func NewAnalyticsCache(base TaskCounter, client *redis.Client, ttl time.Duration) *AnalyticsCache {
	if base == nil {
		panic("services.NewAnalyticsCache: base counter is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &AnalyticsCache{base: base, redis: client, ttl: ttl}
}

// NewRedisClient builds a go-redis client from config and pings it.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *AnalyticsCache) CountTasks(ctx context.Context, projectID string) (TaskCounts, error) {
	if counts, ok := c.load(ctx, projectID); ok {
		return counts, nil
	}

	counts, err := c.base.CountTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, projectID, counts)
	return counts, nil
}

// Evict drops the cached counts of a project.
func (c *AnalyticsCache) Evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, analyticsCacheKey(projectID)).Err()
}

func (c *AnalyticsCache) load(ctx context.Context, projectID string) (TaskCounts, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := analyticsCacheKey(projectID)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var counts TaskCounts
	if err := json.Unmarshal(data, &counts); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return counts, true
}

func (c *AnalyticsCache) store(ctx context.Context, projectID string, counts TaskCounts) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, analyticsCacheKey(projectID), data, c.ttl).Err()
}

func analyticsCacheKey(projectID string) string {
	return "analytics:project:" + projectID
}

var errCacheDisabled = errors.New("analytics cache has no redis client")

// Ping checks the Redis connection behind the cache.
func (c *AnalyticsCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return errCacheDisabled
	}
	return c.redis.Ping(ctx).Err()
}
