package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, Options{Expiry: 5 * time.Second, Tries: 1, RetryDelay: 10 * time.Millisecond}), mr
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	l, mr := newTestLocker(t)
	ran := false
	err := l.WithLock(context.Background(), "lock:test", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:test"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:test"))
}

func TestWithLock_PropagatesError(t *testing.T) {
	l, mr := newTestLocker(t)
	boom := errors.New("boom")
	err := l.WithLock(context.Background(), "lock:test", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:test"))
}

func TestWithLock_BusyWhenHeld(t *testing.T) {
	l, _ := newTestLocker(t)
	err := l.WithLock(context.Background(), "lock:test", func(ctx context.Context) error {
		return l.WithLock(ctx, "lock:test", func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, ErrLockBusy)
}
