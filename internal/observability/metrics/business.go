package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProviderConfig configures the OTLP meter provider.
type ProviderConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Business exposes order-level instruments pushed over OTLP. Operational
// counters stay on the Prometheus registry.
type Business struct {
	ordersPersisted metric.Int64Counter
	rateLimited     metric.Int64Counter
	eventsPublished metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg ProviderConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics exporter initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// NewBusiness creates the order instruments on the given provider.
func NewBusiness(cfg ProviderConfig, provider metric.MeterProvider) (*Business, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "flashsale"
	}
	meter := provider.Meter(name)

	ordersPersisted, err := meter.Int64Counter("flashsale_orders_persisted_total")
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("flashsale_rate_limited_total")
	if err != nil {
		return nil, err
	}
	eventsPublished, err := meter.Int64Counter("flashsale_events_published_total")
	if err != nil {
		return nil, err
	}

	return &Business{
		ordersPersisted: ordersPersisted,
		rateLimited:     rateLimited,
		eventsPublished: eventsPublished,
	}, nil
}

// RecordOrderPersisted counts orders written by the consumer.
func (b *Business) RecordOrderPersisted(ctx context.Context) {
	if b == nil {
		return
	}
	b.ordersPersisted.Add(ctx, 1)
}

// RecordRateLimited counts admissions rejected by the throttle.
func (b *Business) RecordRateLimited(ctx context.Context, endpoint string) {
	if b == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	b.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventPublished counts outbound domain events by type and result.
func (b *Business) RecordEventPublished(ctx context.Context, eventType, result string) {
	if b == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	b.eventsPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":   {},
	"event_type": {},
	"result":     {},
	"outcome":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
