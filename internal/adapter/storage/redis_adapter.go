package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const asOfKeySuffix = ":asof"

// setIfNewerScript writes the value and its stamp unless a later stamp is
// already stored. Both keys share the TTL so they expire together.
var setIfNewerScript = redis.NewScript(`
local stamp = redis.call('GET', KEYS[2])
if stamp and tonumber(stamp) > tonumber(ARGV[2]) then
	return 0
end

redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisAdapter is the Redis-backed quote cache. It never returns errors: the
// cache is an optimization and every failure degrades to a miss.
type RedisAdapter struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	log       *slog.Logger
}

func NewRedisAdapter(client redis.UniversalClient, opTimeout time.Duration, log *slog.Logger) *RedisAdapter {
	return &RedisAdapter{client: client, opTimeout: opTimeout, log: log}
}

// opContext detaches from the caller's cancellation and bounds the call by
// the adapter's own timeout.
func (r *RedisAdapter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
}

func (r *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("redis get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "key", key, "error", err)
		return false
	}
	return true
}

func (r *RedisAdapter) SetIfNewer(ctx context.Context, key string, value []byte, asOf time.Time, ttl time.Duration) bool {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	keys := []string{key, key + asOfKeySuffix}
	applied, err := setIfNewerScript.Run(ctx, r.client, keys, value, asOf.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		r.log.Warn("redis conditional set failed", "key", key, "error", err)
		return true
	}
	return applied == 1
}

func (r *RedisAdapter) Clear(ctx context.Context, key string) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Warn("redis delete failed", "key", key, "error", err)
	}
}
