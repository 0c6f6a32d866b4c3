package kvstore

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kvstore",
	fx.Provide(New),
	fx.Provide(provideUniversalClient),
)

func provideUniversalClient(lc fx.Lifecycle, client *redis.Client, logger *zap.Logger) redis.UniversalClient {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing redis client")
			return client.Close()
		},
	})
	return client
}
