// Package lock serialises work across instances with a Redis-backed mutex.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockBusy is returned when the lock is held elsewhere after every retry.
var ErrLockBusy = errors.New("Another operation is already running, try again shortly")

// Locker runs fn while holding the named lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Options tune acquisition. Expiry must outlive the guarded work.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions suits bulk imports bounded by a 30s transaction timeout.
func DefaultOptions() Options {
	return Options{
		Expiry:     45 * time.Second,
		Tries:      3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// RedisLocker implements Locker with redsync over a go-redis client.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
}

// NewRedisLocker builds a locker on rdb.
func NewRedisLocker(rdb *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(rdb)),
		opts: opts,
	}
}

// WithLock acquires key, runs fn and releases the lock even when fn fails.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: nil function")
	}
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info().Str("lock_key", key).Err(err).Msg("lock not acquired")
		return fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	defer func() {
		// Unlock with a fresh context so a cancelled ctx still frees the key.
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			log.Warn().Str("lock_key", key).Err(err).Msg("failed to release lock")
		}
	}()
	return fn(ctx)
}
