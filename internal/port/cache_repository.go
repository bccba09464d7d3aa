package port

import (
	"context"
	"time"
)

// QuoteCache is the everyday view of the shared key/value store. Failures are
// absorbed by implementations: reads report a miss and writes report false.
type QuoteCache interface {
	// Get returns the raw value stored under key, or false on miss or failure
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value with the given TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool

	// SetIfNewer stores value unless a write stamped later than asOf already landed.
	// Returns false only when the write was rejected as stale.
	SetIfNewer(ctx context.Context, key string, value []byte, asOf time.Time, ttl time.Duration) bool

	// Clear removes key
	Clear(ctx context.Context, key string)
}

// CacheAdmin wipes the whole backing store, not just quote keys. It is kept
// off QuoteCache so no read or event path can reach it.
type CacheAdmin interface {
	FlushAll(ctx context.Context, confirm string) error
}
