package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/lock"
)

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerializes(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var mu sync.Mutex
	var order []string
	firstHeld := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, "rollup", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstHeld)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstHeld
	go func() {
		err := locker.WithLock(ctx, "rollup", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()
	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker := newLocker(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := locker.WithLock(ctx, "rollup", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	// the failed holder must not keep the lock
	err = locker.WithLock(ctx, "rollup", time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockGivesUpOnCancel(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithCancel(context.Background())

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "rollup", time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := locker.WithLock(ctx, "rollup", time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}
