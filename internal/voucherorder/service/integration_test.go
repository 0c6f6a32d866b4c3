//go:build integration

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker/container runtime unavailable: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker/container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisIntegration_AdmissionAndRecovery(t *testing.T) {
	rdb := startRedis(t)
	h := newHarnessOn(t, testConfig(), rdb)
	ctx := context.Background()

	voucherID := snowflake.ID(500)
	h.publishVoucher(t, voucherID, 20)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for user := int64(1); user <= 50; user++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			res, err := h.svc.Seckill(asUser(user), voucherID)
			if err != nil || res.Outcome != domain.OutcomeAdmitted {
				return
			}
			mu.Lock()
			admitted++
			mu.Unlock()
		}(user)
	}
	wg.Wait()
	require.Equal(t, 20, admitted)

	// Deliver everything to the consumer without acknowledging, as a crash
	// after read would leave it.
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    h.cfg.Order.Group,
		Consumer: h.cfg.Order.Consumer,
		Streams:  []string{h.cfg.Order.StreamKey, ">"},
		Count:    100,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Equal(t, int64(20), h.pending(t))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.consumer.Run(runCtx)
	}()

	assert.Eventually(t, func() bool {
		return h.orderCount(t, voucherID) == 20 && h.pending(t) == 0
	}, 10*time.Second, 50*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, h.persistedStock(t, voucherID))
	assert.Equal(t, 20, h.publisher.count())
}
