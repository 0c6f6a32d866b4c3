package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/lock"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
	"github.com/smallbiznis/flashsale/internal/observability/tracing"
	"github.com/smallbiznis/flashsale/internal/orderevents"
	"github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"github.com/smallbiznis/flashsale/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mode is the consumer's read position.
type Mode int

const (
	// ModeLive reads new entries from the stream tail.
	ModeLive Mode = iota
	// ModePending claims entries abandoned by other consumers, then re-reads
	// entries delivered to this consumer but never acknowledged.
	ModePending
)

func (m Mode) String() string {
	if m == ModePending {
		return "pending"
	}
	return "live"
}

const (
	lastDelivered = ">"
	pendingStart  = "0"
	noBlock       = -1
	claimStart    = "0-0"
	claimBatch    = 10
)

var errAlreadyPersisted = errors.New("order already persisted")

type ConsumerParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Redis     redis.UniversalClient
	Locker    *lock.Locker
	Repo      domain.Repository
	Publisher orderevents.Publisher
	Config    config.Config
	Metrics   *metrics.Metrics
	Business  *metrics.Business
}

// Consumer persists admitted orders from the order stream. Entries are
// acknowledged only after their order row is durable, so anything that fails
// stays in the group's pending list and is retried in ModePending.
type Consumer struct {
	db        *gorm.DB
	log       *zap.Logger
	redis     redis.UniversalClient
	locker    *lock.Locker
	repo      domain.Repository
	publisher orderevents.Publisher
	metrics   *metrics.Metrics
	business  *metrics.Business

	stream    string
	group     string
	consumer  string
	block     time.Duration
	lockTTL   time.Duration
	claimIdle time.Duration
	backoff   *backoff.ExponentialBackOff
}

func NewConsumer(p ConsumerParams) *Consumer {
	orderCfg := p.Config.Order

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orderCfg.RecoveryBackoff
	b.MaxInterval = orderCfg.RecoveryMaxWait
	b.Reset()

	// An entry is only taken over once its owner could no longer hold the
	// per-user lock for it.
	claimIdle := orderCfg.ClaimMinIdle
	if claimIdle <= p.Config.Lock.OrderLockTTL {
		claimIdle = 2 * p.Config.Lock.OrderLockTTL
	}
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}

	publisher := p.Publisher
	if publisher == nil {
		publisher = orderevents.NopPublisher{}
	}

	return &Consumer{
		db:        p.DB,
		log:       p.Log.Named("voucherorder.consumer"),
		redis:     p.Redis,
		locker:    p.Locker,
		repo:      p.Repo,
		publisher: publisher,
		metrics:   p.Metrics,
		business:  p.Business,
		stream:    orderCfg.StreamKey,
		group:     orderCfg.Group,
		consumer:  orderCfg.Consumer,
		block:     orderCfg.Block,
		lockTTL:   p.Config.Lock.OrderLockTTL,
		claimIdle: claimIdle,
		backoff:   b,
	}
}

// EnsureGroup creates the consumer group and stream if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Run steps the consumer until ctx is cancelled. It starts in ModePending so
// entries left unacknowledged by a previous run are handled first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.log.Info("order consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.consumer),
	)

	mode := ModePending
	for ctx.Err() == nil {
		mode = c.Step(ctx, mode)
	}

	c.log.Info("order consumer stopped")
	return nil
}

// Step performs one read in mode and returns the next mode.
func (c *Consumer) Step(ctx context.Context, mode Mode) Mode {
	var next Mode
	if mode == ModePending {
		next = c.stepPending(ctx)
	} else {
		next = c.stepLive(ctx)
	}
	if next != mode {
		c.metrics.IncConsumerTransition(mode.String(), next.String())
	}
	return next
}

func (c *Consumer) stepLive(ctx context.Context) Mode {
	msg, found, err := c.read(ctx, lastDelivered, c.block)
	if err != nil {
		if ctx.Err() != nil {
			return ModeLive
		}
		c.log.Error("read order stream failed", zap.Error(err))
		return ModePending
	}
	if !found {
		return ModeLive
	}

	if err := c.handle(ctx, ModeLive, msg); err != nil {
		c.log.Error("handle order entry failed, entering recovery",
			zap.String("entry_id", msg.ID),
			zap.Error(err),
		)
		return ModePending
	}
	return ModeLive
}

func (c *Consumer) stepPending(ctx context.Context) Mode {
	c.claimAbandoned(ctx)

	msg, found, err := c.read(ctx, pendingStart, noBlock)
	if err != nil {
		if ctx.Err() != nil {
			return ModePending
		}
		c.log.Error("read pending entries failed", zap.Error(err))
		c.wait(ctx)
		return ModePending
	}
	if !found {
		c.backoff.Reset()
		return ModeLive
	}

	if err := c.handle(ctx, ModePending, msg); err != nil {
		c.log.Error("retry pending order entry failed",
			zap.String("entry_id", msg.ID),
			zap.Error(err),
		)
		c.wait(ctx)
		return ModePending
	}
	c.backoff.Reset()
	return ModePending
}

// claimAbandoned moves entries that another consumer left unacknowledged for
// longer than claimIdle into this consumer's pending list. Consumer names follow
// the host, so a replaced instance never reads its own backlog again.
func (c *Consumer) claimAbandoned(ctx context.Context) {
	msgs, _, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimIdle,
		Start:    claimStart,
		Count:    claimBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("claim abandoned entries failed", zap.Error(err))
		}
		return
	}
	if len(msgs) > 0 {
		c.log.Info("claimed abandoned order entries",
			zap.Int("count", len(msgs)),
			zap.Duration("min_idle", c.claimIdle),
		)
	}
}

func (c *Consumer) read(ctx context.Context, start string, block time.Duration) (redis.XMessage, bool, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, start},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return redis.XMessage{}, false, nil
	}
	if err != nil {
		return redis.XMessage{}, false, err
	}
	for _, stream := range streams {
		if len(stream.Messages) > 0 {
			return stream.Messages[0], true, nil
		}
	}
	return redis.XMessage{}, false, nil
}

func (c *Consumer) wait(ctx context.Context) {
	timer := time.NewTimer(c.backoff.NextBackOff())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// handle persists one entry and acknowledges it.
func (c *Consumer) handle(ctx context.Context, mode Mode, msg redis.XMessage) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "voucherorder.consume",
		attribute.String("entry_id", msg.ID),
		attribute.String("mode", mode.String()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "order entry failed")
			c.metrics.IncConsumerEntry(mode.String(), metrics.EntryResultFailed)
		}
		span.End()
	}()

	entry, err := decodeEntry(msg)
	if err != nil {
		return err
	}

	created, err := c.persist(ctx, entry)
	if err != nil {
		return err
	}

	if err := c.redis.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}

	result := metrics.EntryResultDuplicate
	if created {
		result = metrics.EntryResultPersisted
		c.business.RecordOrderPersisted(ctx)
		c.publish(ctx, entry)
	}
	c.metrics.IncConsumerEntry(mode.String(), result)
	c.metrics.ObserveEntryDuration(mode.String(), time.Since(start))
	return nil
}

// persist writes the order under the per-user lock. It reports false when the
// order already existed. A contended lock returns ErrLockContended and leaves
// the entry pending for the recovery pass rather than dropping it.
func (c *Consumer) persist(ctx context.Context, entry domain.OrderEntry) (bool, error) {
	resource := "order:" + entry.UserID.String()
	token, ok, err := c.locker.TryLock(ctx, resource, c.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return false, domain.ErrLockContended
	}
	defer func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), resource, token); err != nil {
			c.log.Warn("release order lock failed", zap.String("user_id", entry.UserID.String()), zap.Error(err))
		}
	}()

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := c.repo.FindOrder(ctx, tx, entry.UserID, entry.VoucherID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyPersisted
		}

		decremented, err := c.repo.DecrementStockIfPositive(ctx, tx, entry.VoucherID)
		if err != nil {
			return err
		}
		if !decremented {
			c.log.Warn("persisted stock exhausted for admitted order",
				zap.String("order_id", entry.OrderID.String()),
				zap.String("voucher_id", entry.VoucherID.String()),
			)
		}

		now := time.Now().UTC()
		err = c.repo.InsertOrder(ctx, tx, &domain.VoucherOrder{
			ID:        entry.OrderID,
			UserID:    entry.UserID,
			VoucherID: entry.VoucherID,
			Status:    domain.OrderStatusUnpaid,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if db.IsDuplicateKeyErr(err) {
			return errAlreadyPersisted
		}
		return err
	})
	if errors.Is(err, errAlreadyPersisted) {
		c.log.Info("order already persisted",
			zap.String("order_id", entry.OrderID.String()),
			zap.String("user_id", entry.UserID.String()),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Consumer) publish(ctx context.Context, entry domain.OrderEntry) {
	err := c.publisher.PublishOrderPersisted(ctx, orderevents.OrderPersisted{
		OrderID:     entry.OrderID,
		UserID:      entry.UserID,
		VoucherID:   entry.VoucherID,
		PersistedAt: time.Now().UTC(),
	})
	if err != nil {
		c.business.RecordEventPublished(ctx, orderevents.EventOrderPersisted, "failed")
		c.log.Warn("publish order event failed", zap.String("order_id", entry.OrderID.String()), zap.Error(err))
		return
	}
	c.business.RecordEventPublished(ctx, orderevents.EventOrderPersisted, "ok")
}

func decodeEntry(msg redis.XMessage) (domain.OrderEntry, error) {
	orderID, err := parseField(msg, "id")
	if err != nil {
		return domain.OrderEntry{}, err
	}
	userID, err := parseField(msg, "user_id")
	if err != nil {
		return domain.OrderEntry{}, err
	}
	voucherID, err := parseField(msg, "voucher_id")
	if err != nil {
		return domain.OrderEntry{}, err
	}
	return domain.OrderEntry{
		StreamID:  msg.ID,
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
	}, nil
}

func parseField(msg redis.XMessage, field string) (snowflake.ID, error) {
	raw, ok := msg.Values[field].(string)
	if !ok {
		return 0, fmt.Errorf("%w: %s missing %s", domain.ErrMalformedEntry, msg.ID, field)
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s has invalid %s %q", domain.ErrMalformedEntry, msg.ID, field, raw)
	}
	return id, nil
}
