package voucherorder

import (
	"context"

	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/voucherorder/repository"
	"github.com/smallbiznis/flashsale/internal/voucherorder/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("voucherorder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewConsumer),
	fx.Invoke(runConsumer),
)

func runConsumer(lc fx.Lifecycle, cfg config.Config, consumer *service.Consumer, log *zap.Logger) {
	if !cfg.Order.ConsumerEnabled {
		log.Info("order consumer disabled")
		return
	}

	var (
		cancel context.CancelFunc
		done   = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				if err := consumer.Run(ctx); err != nil {
					log.Error("order consumer exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
