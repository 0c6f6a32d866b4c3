package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(provideRebuilder),
	fx.Provide(provideClient),
)

// provideClient follows the tuning file for the null-sentinel TTL.
func provideClient(
	client redis.UniversalClient,
	clk clock.Clock,
	rebuilder *Rebuilder,
	cfg config.Config,
	tuning *config.TuningHolder,
	log *zap.Logger,
	m *metrics.Metrics,
) *Client {
	c := NewClient(client, clk, rebuilder, cfg, log, m)
	c.nullTTLFor = func() time.Duration { return tuning.Get().NullTTL() }
	return c
}

func provideRebuilder(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Rebuilder {
	r := NewRebuilder(cfg.Cache.RebuildWorkers, log, m)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			r.Close()
			return nil
		},
	})
	return r
}
