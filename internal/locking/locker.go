package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	custom_error "sitewarehouse/pkg/errors"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Lock interface {
	Release(ctx context.Context) error
}

// Locker serialises workflow transitions on one aggregate across processes.
// Postgres row locks stay authoritative.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

func Key(aggregate string, id int) string {
	return fmt.Sprintf("lock:%s:%d", aggregate, id)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		logger: logger.Named("locker"),
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("Could not obtain lock", zap.String("key", key))
		return nil, custom_error.NewBusinessRuleError("concurrent_modification", "another change to %s is in progress, retry shortly", key)
	} else if err != nil {
		l.logger.Error("Error obtaining lock", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return lock, nil
}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

// NoopLocker is used when no Redis is configured.
type NoopLocker struct{}

func NewNoopLocker() NoopLocker {
	return NoopLocker{}
}

func (NoopLocker) Obtain(context.Context, string) (Lock, error) {
	return noopLock{}, nil
}

// Release logs failures instead of returning them.
func Release(ctx context.Context, lock Lock, logger *zap.Logger) {
	if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		logger.Warn("Failed to release lock", zap.Error(err))
	}
}
