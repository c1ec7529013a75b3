// Package db defines the shared key-value backend used across guardscan
// instances: verdict caching and classifier quota counters.
package db

import (
	"context"
	"time"
)

// Store is the full backend surface. Consumers should depend on the narrower
// Cache or Counter interfaces.
type Store interface {
	Pinger
	Cache
	Counter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache stores opaque values with expiry. Get returns ErrKeyNotFound for a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Counter maintains integer counters. With nx set, Expire only applies to a
// key that has no expiry yet.
type Counter interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
