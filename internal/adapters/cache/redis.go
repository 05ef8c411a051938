package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

const keyPrefix = "m91:"

// Connect accepts either a redis:// URL or a bare host:port and checks the server is
// reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisCache namespaces every key under the service prefix.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// IncrWithTTL increments key and sets its expiry only when the increment created it,
// so later hits do not extend a fixed window.
func (c *RedisCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	redisKey := keyPrefix + key
	n, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, redisKey, ttl).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return n, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return unavailable(c.client.Ping(ctx).Err())
}

// unavailable marks a failed redis call as a dependency outage. Cancellation keeps its
// own meaning.
func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: redis: %v", domain.ErrDependencyUnavailable, err)
}
