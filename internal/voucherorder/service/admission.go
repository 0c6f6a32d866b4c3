package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/callerctx"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/idgen"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
	"github.com/smallbiznis/flashsale/internal/observability/tracing"
	"github.com/smallbiznis/flashsale/internal/ratelimit"
	"github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tracerName   = "flashsale/voucherorder"
	orderIDScope = "order"
)

// admissionScript decides admission atomically and enqueues the admitted
// order in the same step. A repeat buyer is reported as a duplicate even
// once stock has run out.
//
//	KEYS: stock, buyers, stream
//	ARGV: voucherId, userId, orderId
//	returns 0 admitted, 1 out of stock, 2 duplicate
const admissionScript = `
if redis.call('SISMEMBER', KEYS[2], ARGV[2]) == 1 then
  return 2
end
local stock = tonumber(redis.call('GET', KEYS[1]) or '0')
if stock == nil or stock <= 0 then
  return 1
end
redis.call('INCRBY', KEYS[1], -1)
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('XADD', KEYS[3], '*', 'id', ARGV[3], 'user_id', ARGV[2], 'voucher_id', ARGV[1])
return 0
`

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Redis    redis.UniversalClient
	GenID    *snowflake.Node
	IDs      *idgen.Worker
	Repo     domain.Repository
	Limiter  *ratelimit.AdmissionLimiter
	Clock    clock.Clock
	Config   config.Config
	Metrics  *metrics.Metrics
	Business *metrics.Business
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	redis    redis.UniversalClient
	genID    *snowflake.Node
	ids      *idgen.Worker
	repo     domain.Repository
	limiter  *ratelimit.AdmissionLimiter
	clock    clock.Clock
	metrics  *metrics.Metrics
	business *metrics.Business

	streamKey string
	admission *redis.Script
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("voucherorder.service"),
		redis:     p.Redis,
		genID:     p.GenID,
		ids:       p.IDs,
		repo:      p.Repo,
		limiter:   p.Limiter,
		clock:     p.Clock,
		metrics:   p.Metrics,
		business:  p.Business,
		streamKey: p.Config.Order.StreamKey,
		admission: redis.NewScript(admissionScript),
	}
}

func (s *Service) Seckill(ctx context.Context, voucherID snowflake.ID) (domain.AdmissionResult, error) {
	userID, ok := callerctx.UserIDFromContext(ctx)
	if !ok {
		return domain.AdmissionResult{}, domain.ErrUnauthenticated
	}
	if voucherID <= 0 {
		return domain.AdmissionResult{}, domain.ErrInvalidVoucher
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "voucherorder.admission",
		attribute.String("voucher_id", voucherID.String()),
		attribute.String("user_id", userID.String()),
	)
	defer span.End()

	decision, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return domain.AdmissionResult{}, fmt.Errorf("admission throttle: %w", err)
	}
	if !decision.Allowed {
		s.metrics.IncAdmission("rate_limited")
		s.business.RecordRateLimited(ctx, "seckill")
		return domain.AdmissionResult{}, domain.ErrRateLimited
	}

	orderID, err := s.ids.NextID(ctx, orderIDScope)
	if err != nil {
		return domain.AdmissionResult{}, fmt.Errorf("mint order id: %w", err)
	}

	raw, err := s.admission.Run(ctx, s.redis,
		[]string{
			kvstore.SeckillStockKey(voucherID.Int64()),
			kvstore.SeckillBuyersKey(voucherID.Int64()),
			s.streamKey,
		},
		voucherID.String(),
		userID.String(),
		orderID.String(),
	).Int64()
	if err != nil {
		return domain.AdmissionResult{}, fmt.Errorf("run admission script: %w", err)
	}

	outcome := domain.Outcome(raw)
	span.SetAttributes(attribute.String("outcome", outcome.String()))
	switch outcome {
	case domain.OutcomeAdmitted:
		s.metrics.IncAdmission(outcome.String())
		return domain.AdmissionResult{Outcome: outcome, OrderID: orderID}, nil
	case domain.OutcomeOutOfStock, domain.OutcomeDuplicate:
		s.metrics.IncAdmission(outcome.String())
		return domain.AdmissionResult{Outcome: outcome}, nil
	default:
		s.log.Error("unexpected admission script result", zap.Int64("result", raw))
		return domain.AdmissionResult{}, domain.ErrUnexpectedScriptResult
	}
}

// PublishVoucher stores the voucher and seeds its admission stock.
func (s *Service) PublishVoucher(ctx context.Context, req domain.PublishVoucherRequest) (domain.SeckillVoucher, error) {
	if req.Stock < 0 {
		return domain.SeckillVoucher{}, domain.ErrInvalidStock
	}
	if req.BeginTime.IsZero() || req.EndTime.IsZero() || !req.EndTime.After(req.BeginTime) {
		return domain.SeckillVoucher{}, domain.ErrInvalidWindow
	}

	voucherID := req.VoucherID
	if voucherID == 0 {
		voucherID = s.genID.Generate()
	}

	now := s.clock.Now().UTC()
	voucher := domain.SeckillVoucher{
		VoucherID: voucherID,
		Stock:     req.Stock,
		BeginTime: req.BeginTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertVoucher(ctx, s.db, &voucher); err != nil {
		return domain.SeckillVoucher{}, err
	}

	if err := s.redis.Set(ctx, kvstore.SeckillStockKey(voucherID.Int64()), voucher.Stock, 0).Err(); err != nil {
		return domain.SeckillVoucher{}, fmt.Errorf("seed admission stock: %w", err)
	}

	s.log.Info("voucher published",
		zap.String("voucher_id", voucherID.String()),
		zap.Int("stock", voucher.Stock),
		zap.Duration("window", voucher.EndTime.Sub(voucher.BeginTime).Round(time.Second)),
	)
	return voucher, nil
}
