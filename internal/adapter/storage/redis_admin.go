package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// FlushAllConfirmation must be passed verbatim to FlushAll.
const FlushAllConfirmation = "FLUSHALL"

var ErrFlushNotConfirmed = errors.New("flush all not confirmed")

// RedisAdmin flushes every database of the backing Redis, including keys
// owned by other services sharing the instance.
type RedisAdmin struct {
	client redis.UniversalClient
}

func NewRedisAdmin(client redis.UniversalClient) *RedisAdmin {
	return &RedisAdmin{client: client}
}

func (a *RedisAdmin) FlushAll(ctx context.Context, confirm string) error {
	if confirm != FlushAllConfirmation {
		return ErrFlushNotConfirmed
	}
	if err := a.client.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("flush all: %w", err)
	}
	return nil
}
