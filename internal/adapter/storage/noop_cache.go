package storage

import (
	"context"
	"time"
)

// NoopCache is selected when cache.enabled is false. Every read misses and
// every write is dropped.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NoopCache) Set(context.Context, string, []byte, time.Duration) bool { return false }

// SetIfNewer reports true so callers do not mistake a disabled cache for a
// stale event.
func (NoopCache) SetIfNewer(context.Context, string, []byte, time.Time, time.Duration) bool {
	return true
}

func (NoopCache) Clear(context.Context, string) {}
