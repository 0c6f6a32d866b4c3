package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/shop/domain"
	"go.uber.org/zap"
)

// Warmer pre-populates the logical-expiry entries of the hot shop list.
// Those keys are never filled on demand.
type Warmer struct {
	svc    domain.Service
	tuning *config.TuningHolder
	log    *zap.Logger
}

func NewWarmer(svc domain.Service, tuning *config.TuningHolder, log *zap.Logger) *Warmer {
	return &Warmer{svc: svc, tuning: tuning, log: log.Named("shop.warmer")}
}

// WarmAll returns the number of shops warmed. Missing shops are logged and
// skipped.
func (w *Warmer) WarmAll(ctx context.Context) int {
	tuning := w.tuning.Get()
	warmed := 0
	for _, raw := range tuning.HotShopIDs {
		id := snowflake.ID(raw)
		if err := w.svc.Warm(ctx, id, tuning.ShopTTL()); err != nil {
			w.log.Warn("warm hot shop failed", zap.String("shop_id", id.String()), zap.Error(err))
			continue
		}
		warmed++
	}
	w.log.Info("hot shops warmed", zap.Int("warmed", warmed), zap.Int("configured", len(tuning.HotShopIDs)))
	return warmed
}
