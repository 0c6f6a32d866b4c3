package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProvider_DisabledNeverSamples(t *testing.T) {
	tp, err := NewProvider(nil, Config{ServiceName: "flashsale"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestNewExporter_RejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("smtp", "")
	assert.Error(t, err)
}

func TestNormalizeRatio(t *testing.T) {
	assert.Equal(t, 0.0, normalizeRatio(-1))
	assert.Equal(t, 0.25, normalizeRatio(0.25))
	assert.Equal(t, 1.0, normalizeRatio(3))
}
