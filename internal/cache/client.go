package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// nullValue marks an id the fallback confirmed absent.
const nullValue = ""

// sharedLoadTimeout bounds a coalesced pass-through load.
const sharedLoadTimeout = 5 * time.Second

// Fallback loads the authoritative value for id. A nil result with a nil
// error means the record does not exist.
type Fallback[T any, ID any] func(ctx context.Context, id ID) (*T, error)

// entry is the stored shape of a logically expiring value.
type entry struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

type Client struct {
	client    redis.UniversalClient
	clock     clock.Clock
	rebuilder *Rebuilder
	flight    singleflight.Group

	nullTTL    time.Duration
	nullTTLFor func() time.Duration
	lockTTL    time.Duration

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(
	client redis.UniversalClient,
	clk clock.Clock,
	rebuilder *Rebuilder,
	cfg config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		client:    client,
		clock:     clk,
		rebuilder: rebuilder,
		nullTTL:   cfg.Cache.NullTTL,
		lockTTL:   cfg.Cache.RebuildLockTTL,
		log:       log.Named("cache"),
		metrics:   m,
	}
}

// Set stores value as JSON with a store-enforced TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// SetWithLogicalExpire stores value with an embedded expiry and no store TTL.
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	payload, err := json.Marshal(entry{
		Data:       data,
		ExpireTime: c.clock.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.client.Set(ctx, key, payload, 0).Err()
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// QueryWithPassThrough reads prefix+id, falling back on a miss and caching
// absence as an empty sentinel for the null TTL. A nil result with a nil
// error means the record is confirmed absent.
func QueryWithPassThrough[T any, ID any](
	ctx context.Context,
	c *Client,
	prefix string,
	id ID,
	fallback Fallback[T, ID],
	ttl time.Duration,
) (*T, error) {
	key := prefix + fmt.Sprint(id)

	value, found, err := readPassThrough[T](ctx, c, key)
	if err != nil {
		return nil, err
	}
	if found {
		return value, nil
	}

	// Concurrent misses for one key share a single fallback call. The shared
	// load outlives the first caller's cancellation.
	ch := c.flight.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		value, found, err := readPassThrough[T](lctx, c, key)
		if err != nil || found {
			return value, err
		}
		return loadPassThrough(lctx, c, key, id, fallback, ttl)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

func readPassThrough[T any](ctx context.Context, c *Client, key string) (*T, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == nullValue {
		c.metrics.IncCacheLookup(metrics.CacheStrategyPassThrough, metrics.CacheResultNullHit)
		return nil, true, nil
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("decode cache value %s: %w", key, err)
	}
	c.metrics.IncCacheLookup(metrics.CacheStrategyPassThrough, metrics.CacheResultHit)
	return &value, true, nil
}

func loadPassThrough[T any, ID any](
	ctx context.Context,
	c *Client,
	key string,
	id ID,
	fallback Fallback[T, ID],
	ttl time.Duration,
) (*T, error) {
	c.metrics.IncCacheLookup(metrics.CacheStrategyPassThrough, metrics.CacheResultMiss)

	value, err := fallback(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if err := c.client.Set(ctx, key, nullValue, c.currentNullTTL()).Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}

// QueryWithLogicalExpire serves pre-warmed entries. Expired entries are
// returned as-is while at most one background rebuild per key refreshes them.
// A missing key yields (nil, nil).
func QueryWithLogicalExpire[T any, ID any](
	ctx context.Context,
	c *Client,
	prefix string,
	id ID,
	fallback Fallback[T, ID],
	ttl time.Duration,
) (*T, error) {
	key := prefix + fmt.Sprint(id)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCacheLookup(metrics.CacheStrategyLogicalExpire, metrics.CacheResultAbsent)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored entry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	var value T
	if err := json.Unmarshal(stored.Data, &value); err != nil {
		return nil, fmt.Errorf("decode cache value %s: %w", key, err)
	}

	if stored.ExpireTime.After(c.clock.Now()) {
		c.metrics.IncCacheLookup(metrics.CacheStrategyLogicalExpire, metrics.CacheResultHit)
		return &value, nil
	}

	c.metrics.IncCacheLookup(metrics.CacheStrategyLogicalExpire, metrics.CacheResultStale)
	c.scheduleRebuild(ctx, key, func(ctx context.Context) error {
		fresh, err := fallback(ctx, id)
		if err != nil {
			return err
		}
		if fresh == nil {
			c.log.Warn("rebuild source returned no data, keeping stale entry", zap.String("key", key))
			return nil
		}
		return c.SetWithLogicalExpire(ctx, key, fresh, ttl)
	})
	return &value, nil
}

// scheduleRebuild takes the per-key rebuild lock and hands the task to the
// rebuilder. The lock is deleted on every exit path.
func (c *Client) scheduleRebuild(ctx context.Context, key string, task func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	lockKey := rebuildLockKey(key)

	acquired, err := c.client.SetNX(ctx, lockKey, "1", c.lockTTL).Result()
	if err != nil {
		c.log.Warn("acquire rebuild lock failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !acquired {
		return
	}

	release := func() {
		if err := c.client.Del(base, lockKey).Err(); err != nil {
			c.log.Warn("release rebuild lock failed", zap.String("key", key), zap.Error(err))
		}
	}

	submitted := c.rebuilder.Submit(key, func() error {
		defer release()
		rctx, cancel := context.WithTimeout(base, c.lockTTL)
		defer cancel()
		return task(rctx)
	})
	if !submitted {
		release()
		c.metrics.IncCacheRebuild(metrics.RebuildSkipped)
		return
	}
	c.metrics.IncCacheRebuild(metrics.RebuildSubmitted)
}

func (c *Client) currentNullTTL() time.Duration {
	if c.nullTTLFor != nil {
		if ttl := c.nullTTLFor(); ttl > 0 {
			return ttl
		}
	}
	return c.nullTTL
}

func rebuildLockKey(key string) string {
	return kvstore.LockPrefix + strings.TrimPrefix(key, "cache:")
}
