package cache

import (
	"context"
	"time"
)

// LeaseStore grants a key to the first caller until its TTL runs out.
// The scheduler uses it so only one replica enqueues a periodic retrain per interval.
type LeaseStore interface {
	// TryAcquire returns true if the caller now holds key
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Held reports whether key is currently leased by anyone
	Held(ctx context.Context, key string) (bool, error)
	Close() error
}
