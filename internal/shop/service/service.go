package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/cache"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/observability/tracing"
	"github.com/smallbiznis/flashsale/internal/shop/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "flashsale/shop"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Cache  *cache.Client
	Tuning *config.TuningHolder
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	cache  *cache.Client
	tuning *config.TuningHolder
	clock  clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("shop.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		cache:  p.Cache,
		tuning: p.Tuning,
		clock:  p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.ShopRequest) (domain.Shop, error) {
	if err := validateRequest(req); err != nil {
		return domain.Shop{}, err
	}

	now := s.clock.Now().UTC()
	shop := applyRequest(domain.Shop{ID: s.genID.Generate(), CreatedAt: now}, req, now)
	if err := s.repo.Insert(ctx, s.db, &shop); err != nil {
		return domain.Shop{}, err
	}
	return shop, nil
}

// GetByID serves hot shops with logical expiry and everything else through
// the pass-through cache.
func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Shop, error) {
	if id <= 0 {
		return domain.Shop{}, domain.ErrInvalidID
	}

	tuning := s.tuning.Get()
	hot := tuning.IsHotShop(id.Int64())

	ctx, span := tracing.StartSpan(ctx, tracerName, "shop.get",
		attribute.String("shop.id", id.String()),
		attribute.Bool("shop.hot", hot),
	)
	defer span.End()

	var (
		shop *domain.Shop
		err  error
	)
	if hot {
		shop, err = cache.QueryWithLogicalExpire(ctx, s.cache, kvstore.CacheShopPrefix, id, s.load, tuning.ShopTTL())
	} else {
		shop, err = cache.QueryWithPassThrough(ctx, s.cache, kvstore.CacheShopPrefix, id, s.load, tuning.ShopTTL())
	}
	if err != nil {
		span.RecordError(err)
		return domain.Shop{}, err
	}
	if shop == nil {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return *shop, nil
}

// Update writes the database first and then drops the cached copy. Hot
// shops are re-warmed instead, since a logical-expiry miss never falls back.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.ShopRequest) (domain.Shop, error) {
	if id <= 0 {
		return domain.Shop{}, domain.ErrInvalidID
	}
	if err := validateRequest(req); err != nil {
		return domain.Shop{}, err
	}

	var updated domain.Shop
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrShopNotFound
		}

		updated = applyRequest(*current, req, s.clock.Now().UTC())
		ok, err := s.repo.Update(ctx, tx, &updated)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrShopNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Shop{}, err
	}

	tuning := s.tuning.Get()
	key := kvstore.CacheShopPrefix + id.String()
	if tuning.IsHotShop(id.Int64()) {
		if err := s.cache.SetWithLogicalExpire(ctx, key, updated, tuning.ShopTTL()); err != nil {
			s.log.Warn("re-warm shop after update failed", zap.String("shop_id", id.String()), zap.Error(err))
		}
		return updated, nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("invalidate shop cache failed", zap.String("shop_id", id.String()), zap.Error(err))
	}
	return updated, nil
}

func (s *Service) Warm(ctx context.Context, id snowflake.ID, ttl time.Duration) error {
	if id <= 0 {
		return domain.ErrInvalidID
	}
	if ttl <= 0 {
		ttl = s.tuning.Get().ShopTTL()
	}

	shop, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if shop == nil {
		return domain.ErrShopNotFound
	}
	return s.cache.SetWithLogicalExpire(ctx, kvstore.CacheShopPrefix+id.String(), shop, ttl)
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.Shop, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func validateRequest(req domain.ShopRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return domain.ErrInvalidName
	}
	return nil
}

func applyRequest(shop domain.Shop, req domain.ShopRequest, now time.Time) domain.Shop {
	shop.Name = strings.TrimSpace(req.Name)
	shop.TypeID = req.TypeID
	shop.Area = strings.TrimSpace(req.Area)
	shop.Address = strings.TrimSpace(req.Address)
	shop.AvgPrice = req.AvgPrice
	shop.Score = req.Score
	shop.OpenHours = strings.TrimSpace(req.OpenHours)
	shop.UpdatedAt = now
	return shop
}
