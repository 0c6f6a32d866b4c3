package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestBusiness_RecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	b, err := NewBusiness(ProviderConfig{ServiceName: "flashsale-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	b.RecordOrderPersisted(ctx)
	b.RecordOrderPersisted(ctx)
	b.RecordRateLimited(ctx, "seckill")
	b.RecordEventPublished(ctx, "order.persisted", "ok")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["flashsale_orders_persisted_total"])
	assert.Equal(t, int64(1), totals["flashsale_rate_limited_total"])
	assert.Equal(t, int64(1), totals["flashsale_events_published_total"])
}

func TestBusiness_NilIsNoop(t *testing.T) {
	var b *Business
	assert.NotPanics(t, func() {
		b.RecordOrderPersisted(context.Background())
		b.RecordRateLimited(context.Background(), "seckill")
		b.RecordEventPublished(context.Background(), "order.persisted", "ok")
	})
}

func TestFilterAttributes(t *testing.T) {
	got := FilterAttributes(
		attribute.String("endpoint", "seckill"),
		attribute.String("user_id", "42"),
	)
	assert.Equal(t, []attribute.KeyValue{attribute.String("endpoint", "seckill")}, got)
}

func TestNewExporter_RejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("carrier-pigeon", "")
	assert.Error(t, err)
}
