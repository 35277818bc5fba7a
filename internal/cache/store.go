// Package cache is the TTL key-value store behind the market-data resolver.
// It is injected rather than a package-level map so tests can drive expiry
// with a fake clock instead of waiting on the wall clock.
package cache

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
