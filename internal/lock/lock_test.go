package lock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, nil), mr
}

func TestTryLock_MutualExclusion(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := locker.TryLock(ctx, "order:1", 10*time.Second)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestRelease_MismatchedTokenIsNoop(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, locker.processID+"-"))

	require.NoError(t, locker.Release(ctx, "order:1", "someone-else"))
	stored, err := mr.Get("lock:order:1")
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	_, ok, err = locker.TryLock(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "order:1", token))
	assert.False(t, mr.Exists("lock:order:1"))

	_, ok, err = locker.TryLock(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLock_ExpiresAfterTTL(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	first, ok, err := locker.TryLock(ctx, "shop:9", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second, ok, err := locker.TryLock(ctx, "shop:9", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	// the expired holder cannot delete the new holder's lock
	require.NoError(t, locker.Release(ctx, "shop:9", first))
	stored, err := mr.Get("lock:shop:9")
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestTryLock_InvalidInput(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	_, _, err := locker.TryLock(ctx, " ", time.Second)
	assert.ErrorIs(t, err, ErrEmptyResource)

	_, _, err = locker.TryLock(ctx, "order:1", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}
