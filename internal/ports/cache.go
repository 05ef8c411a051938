package ports

import (
	"context"
	"time"
)

// Cache holds the shared counters behind the public rate limit.
type Cache interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
