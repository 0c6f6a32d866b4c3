package idgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
)

const counterBits = 32

var (
	ErrClockBeforeEpoch  = errors.New("clock_before_epoch")
	ErrSequenceExhausted = errors.New("sequence_exhausted")
	ErrEmptyScope        = errors.New("id_scope_empty")
)

// Worker issues 64-bit ids: seconds since epoch in the high bits and a
// per-scope, per-day counter in the low 32 bits.
type Worker struct {
	client  redis.UniversalClient
	clock   clock.Clock
	epoch   time.Time
	metrics *metrics.Metrics
}

func NewWorker(client redis.UniversalClient, clk clock.Clock, cfg config.Config, m *metrics.Metrics) *Worker {
	return &Worker{
		client:  client,
		clock:   clk,
		epoch:   time.Unix(cfg.IDGen.EpochSeconds, 0).UTC(),
		metrics: m,
	}
}

func (w *Worker) NextID(ctx context.Context, scope string) (snowflake.ID, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, ErrEmptyScope
	}

	now := w.clock.Now().UTC()
	elapsed := now.Unix() - w.epoch.Unix()
	if elapsed < 0 {
		return 0, ErrClockBeforeEpoch
	}

	count, err := w.client.Incr(ctx, kvstore.IDCounterKey(scope, now)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment id counter: %w", err)
	}
	if count > math.MaxUint32 {
		return 0, ErrSequenceExhausted
	}

	w.metrics.IncIDIssued(scope)
	return snowflake.ID(elapsed<<counterBits | count), nil
}

// Decompose splits an id into its issue second and counter value.
func (w *Worker) Decompose(id snowflake.ID) (time.Time, uint32) {
	raw := id.Int64()
	issued := w.epoch.Add(time.Duration(raw>>counterBits) * time.Second)
	return issued, uint32(raw & math.MaxUint32)
}
