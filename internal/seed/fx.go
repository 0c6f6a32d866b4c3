package seed

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/callerctx"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	voucherdomain "github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module bootstraps demo data on start when SEED_DEMO_DATA is set. It must be
// registered before the shop module so warming sees the seeded rows.
var Module = fx.Module("seed",
	fx.Invoke(register),
)

type params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Redis     redis.UniversalClient
	Vouchers  voucherdomain.Service
	Sessions  *callerctx.SessionStore
	Clock     clock.Clock
	Log       *zap.Logger
}

func register(p params) {
	if !p.Config.SeedDemoData {
		return
	}
	log := p.Log.Named("seed")

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			now := p.Clock.Now().UTC()
			if err := EnsureShops(ctx, p.DB, now); err != nil {
				return err
			}
			if err := EnsureVoucher(ctx, p.DB, p.Redis, p.Vouchers, now); err != nil {
				return err
			}
			if err := EnsureSession(ctx, p.Sessions); err != nil {
				return err
			}
			log.Info("demo data ready",
				zap.String("voucher_id", DemoVoucherID.String()),
				zap.String("token", DemoToken),
			)
			return nil
		},
	})
}
