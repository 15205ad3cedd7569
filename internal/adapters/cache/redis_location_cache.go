package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"delivery-dispatch-service/internal/ports"
)

// RedisLocationCache keeps each driver's freshest position under a short TTL
// so candidate searches and ETAs do not rely on the last persisted row.
type RedisLocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocationCache(client *redis.Client, ttl time.Duration) *RedisLocationCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocationCache{client: client, ttl: ttl}
}

func locationKey(driverID string) string {
	return "driver:location:" + driverID
}

func (c *RedisLocationCache) Set(ctx context.Context, driverID string, loc ports.CachedLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("location cache: marshal driver %s: %w", driverID, err)
	}
	if err := c.client.Set(ctx, locationKey(driverID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("location cache: set driver %s: %w", driverID, err)
	}
	return nil
}

func (c *RedisLocationCache) Get(ctx context.Context, driverID string) (ports.CachedLocation, bool, error) {
	raw, err := c.client.Get(ctx, locationKey(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.CachedLocation{}, false, nil
	}
	if err != nil {
		return ports.CachedLocation{}, false, fmt.Errorf("location cache: get driver %s: %w", driverID, err)
	}

	var loc ports.CachedLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return ports.CachedLocation{}, false, fmt.Errorf("location cache: decode driver %s: %w", driverID, err)
	}
	return loc, true, nil
}
