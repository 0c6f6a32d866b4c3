package shop

import (
	"context"

	"github.com/smallbiznis/flashsale/internal/shop/repository"
	"github.com/smallbiznis/flashsale/internal/shop/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shop.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewWarmer),
	fx.Invoke(warmOnStart),
)

func warmOnStart(lc fx.Lifecycle, w *service.Warmer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.WarmAll(ctx)
			return nil
		},
	})
}
