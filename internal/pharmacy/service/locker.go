package service

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// ImportLockKey serialises bulk imports across replicas
const ImportLockKey = "inventory-import"

// Locker grants short-lived exclusive leases
type Locker interface {
	// Obtain returns a release func, or ContendedResource when the lease is held elsewhere
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisLocker implements Locker with bsm/redislock
type RedisLocker struct {
	client *redislock.Client
	prefix string
	logger *logger.Logger
}

// NewRedisLocker creates a locker whose keys are "<prefix>:<key>"
func NewRedisLocker(rdb *redis.Client, prefix string, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		prefix: prefix,
		logger: log,
	}
}

// Obtain takes the lease without waiting. The lease is refreshed every half
// TTL until released, so a holder that outlives one TTL keeps it.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := key
	if l.prefix != "" {
		fullKey = l.prefix + ":" + key
	}

	lock, err := l.client.Obtain(ctx, fullKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, errors.ContendedResource(err)
	}
	if err != nil {
		return nil, errors.Internal("failed to obtain lock").WithCause(err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, fullKey, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// the request context may already be cancelled
			if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
				l.logger.Warn().Err(err).Str("key", fullKey).Msg("failed to release lock")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(lock *redislock.Lock, key string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), ttl, nil); err != nil {
				l.logger.Warn().Err(err).Str("key", key).Msg("failed to refresh lock, lease may lapse")
				return
			}
		}
	}
}

// NoopLocker always grants the lease. Used when Redis is not configured.
type NoopLocker struct{}

// Obtain implements Locker
func (NoopLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
