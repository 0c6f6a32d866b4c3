package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shop struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

const prefix = "cache:shop:"

type harness struct {
	client    *Client
	rebuilder *Rebuilder
	mr        *miniredis.Miniredis
	clock     *clock.FakeClock
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	rebuilder := NewRebuilder(workers, nil, nil)
	t.Cleanup(rebuilder.Close)

	cfg := config.Config{Cache: config.CacheConfig{
		NullTTL:        2 * time.Minute,
		RebuildLockTTL: 10 * time.Second,
	}}
	return &harness{
		client:    NewClient(rdb, clk, rebuilder, cfg, nil, nil),
		rebuilder: rebuilder,
		mr:        mr,
		clock:     clk,
	}
}

func TestPassThrough_HitSkipsFallback(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	require.NoError(t, h.client.Set(ctx, prefix+"1", shop{ID: 1, Name: "cafe"}, time.Minute))

	got, err := QueryWithPassThrough(ctx, h.client, prefix, int64(1), func(context.Context, int64) (*shop, error) {
		t.Fatal("fallback must not run on a hit")
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, &shop{ID: 1, Name: "cafe"}, got)
}

func TestPassThrough_MissStoresValue(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	got, err := QueryWithPassThrough(ctx, h.client, prefix, int64(2), func(_ context.Context, id int64) (*shop, error) {
		return &shop{ID: id, Name: "bakery"}, nil
	}, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "bakery", got.Name)

	raw, err := h.mr.Get(prefix + "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"name":"bakery"}`, raw)
	assert.Equal(t, 30*time.Minute, h.mr.TTL(prefix+"2"))
}

func TestPassThrough_PenetrationProtection(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(context.Context, int64) (*shop, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := QueryWithPassThrough(ctx, h.client, prefix, int64(404), fallback, time.Minute)
			assert.NoError(t, err)
			assert.Nil(t, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	raw, err := h.mr.Get(prefix + "404")
	require.NoError(t, err)
	assert.Equal(t, "", raw)
	assert.Equal(t, 2*time.Minute, h.mr.TTL(prefix+"404"))

	// once the sentinel expires the fallback is consulted again
	h.mr.FastForward(3 * time.Minute)
	_, err = QueryWithPassThrough(ctx, h.client, prefix, int64(404), fallback, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPassThrough_FallbackErrorIsNotCached(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	boom := errors.New("db down")

	_, err := QueryWithPassThrough(ctx, h.client, prefix, int64(3), func(context.Context, int64) (*shop, error) {
		return nil, boom
	}, time.Minute)
	assert.ErrorIs(t, err, boom)
	assert.False(t, h.mr.Exists(prefix+"3"))
}

func TestLogicalExpire_AbsentKeyReturnsNil(t *testing.T) {
	h := newHarness(t, 2)

	got, err := QueryWithLogicalExpire(context.Background(), h.client, prefix, int64(5), func(context.Context, int64) (*shop, error) {
		t.Fatal("fallback must not run for a cold key")
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLogicalExpire_FreshEntry(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"6", shop{ID: 6, Name: "noodle"}, time.Minute))
	assert.Equal(t, time.Duration(0), h.mr.TTL(prefix+"6"))

	raw, err := h.mr.Get(prefix + "6")
	require.NoError(t, err)
	var stored entry
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.True(t, stored.ExpireTime.Equal(h.clock.Now().Add(time.Minute)))

	got, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(6), func(context.Context, int64) (*shop, error) {
		t.Fatal("fallback must not run for a fresh entry")
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "noodle", got.Name)
}

func TestLogicalExpire_BreakdownProtection(t *testing.T) {
	h := newHarness(t, 4)
	ctx := context.Background()
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"7", shop{ID: 7, Name: "stale"}, time.Second))
	h.clock.Advance(time.Minute)

	var calls atomic.Int32
	unblock := make(chan struct{})
	fallback := func(_ context.Context, id int64) (*shop, error) {
		calls.Add(1)
		<-unblock
		return &shop{ID: id, Name: "fresh"}, nil
	}

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(7), fallback, 30*time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, "stale", got.Name)
		}()
	}
	// every caller returns while the rebuild is still blocked
	wg.Wait()
	assert.True(t, h.mr.Exists("lock:shop:7"))

	close(unblock)
	h.rebuilder.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, h.mr.Exists("lock:shop:7"))

	got, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(7), fallback, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)
}

func TestLogicalExpire_RebuildFailureKeepsStale(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"8", shop{ID: 8, Name: "stale"}, time.Second))
	h.clock.Advance(time.Minute)

	got, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(8), func(context.Context, int64) (*shop, error) {
		return nil, errors.New("db down")
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "stale", got.Name)
	h.rebuilder.Close()

	assert.False(t, h.mr.Exists("lock:shop:8"))
	got, err = QueryWithLogicalExpire(ctx, h.client, prefix, int64(8), func(context.Context, int64) (*shop, error) {
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "stale", got.Name)
}

func TestLogicalExpire_SaturatedPoolReleasesLock(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"1", shop{ID: 1}, time.Second))
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"2", shop{ID: 2}, time.Second))
	h.clock.Advance(time.Minute)

	unblock := make(chan struct{})
	blocking := func(_ context.Context, id int64) (*shop, error) {
		<-unblock
		return &shop{ID: id}, nil
	}

	_, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(1), blocking, time.Minute)
	require.NoError(t, err)
	_, err = QueryWithLogicalExpire(ctx, h.client, prefix, int64(2), blocking, time.Minute)
	require.NoError(t, err)

	assert.True(t, h.mr.Exists("lock:shop:1"))
	assert.False(t, h.mr.Exists("lock:shop:2"))

	close(unblock)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	require.NoError(t, h.client.Set(ctx, prefix+"9", shop{ID: 9}, time.Minute))
	require.NoError(t, h.client.Delete(ctx, prefix+"9"))
	assert.False(t, h.mr.Exists(prefix+"9"))
}

func TestPassThrough_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	h := newHarness(t, 1)

	started := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	fallback := func(_ context.Context, id int64) (*shop, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-unblock
		return &shop{ID: id, Name: "bakery"}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := QueryWithPassThrough(leaderCtx, h.client, prefix, int64(11), fallback, time.Minute)
		leaderErr <- err
	}()
	<-started

	type result struct {
		value *shop
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		got, err := QueryWithPassThrough(context.Background(), h.client, prefix, int64(11), fallback, time.Minute)
		follower <- result{got, err}
	}()

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	close(unblock)

	res := <-follower
	require.NoError(t, res.err)
	require.NotNil(t, res.value)
	assert.Equal(t, "bakery", res.value.Name)
	assert.True(t, h.mr.Exists(prefix+"11"))
}

func TestLogicalExpire_PanickingRebuildKeepsStale(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	require.NoError(t, h.client.SetWithLogicalExpire(ctx, prefix+"12", shop{ID: 12, Name: "stale"}, time.Second))
	h.clock.Advance(time.Minute)

	got, err := QueryWithLogicalExpire(ctx, h.client, prefix, int64(12), func(context.Context, int64) (*shop, error) {
		var broken map[string]int
		broken["boom"] = 1
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "stale", got.Name)

	h.rebuilder.Close()

	assert.False(t, h.mr.Exists("lock:shop:12"))
	got, err = QueryWithLogicalExpire(ctx, h.client, prefix, int64(12), func(context.Context, int64) (*shop, error) {
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "stale", got.Name)
}

func TestRebuilder_RecoversPanic(t *testing.T) {
	r := NewRebuilder(1, nil, nil)
	ran := make(chan struct{})
	require.True(t, r.Submit("cache:shop:1", func() error {
		defer close(ran)
		panic("bad row")
	}))
	<-ran
	r.Close()

	assert.ErrorContains(t, runRecovered(func() error { panic("bad row") }), "rebuild panicked: bad row")
}
