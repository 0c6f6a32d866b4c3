package orderevents

import (
	"context"

	"github.com/smallbiznis/flashsale/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("orderevents",
	fx.Provide(NewPublisher),
)

// NewPublisher returns a kafka publisher when events are enabled.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if !cfg.Events.Enabled {
		return NopPublisher{}, nil
	}

	publisher, err := NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
	if err != nil {
		return nil, err
	}
	log.Info("order events enabled",
		zap.Strings("brokers", cfg.Events.Brokers),
		zap.String("topic", cfg.Events.Topic),
	)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}
