package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ecotrace/pkg/sentinel"
)

const counterKeyPrefix = "counter:"

// RedisAllocator implements Allocator on a single Redis INCR per allocation.
// INCR is atomic on the server, so concurrent callers can never observe the
// same post-increment value, and a missing key counts from zero.
type RedisAllocator struct {
	client *redis.Client
}

// NewRedisAllocator constructs a Redis-backed allocator.
func NewRedisAllocator(client *redis.Client) *RedisAllocator {
	return &RedisAllocator{client: client}
}

func (a *RedisAllocator) Next(ctx context.Context, namespace string) (int64, error) {
	val, err := a.client.Incr(ctx, counterKeyPrefix+namespace).Result()
	if err != nil {
		return 0, translate(err, "incr counter "+namespace)
	}
	return val, nil
}

func (a *RedisAllocator) Current(ctx context.Context, namespace string) (int64, error) {
	val, err := a.client.Get(ctx, counterKeyPrefix+namespace).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err, "get counter "+namespace)
	}
	return val, nil
}

func translate(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
}
