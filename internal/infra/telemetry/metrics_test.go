package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter(instrumentationScope))
	require.NoError(t, err)

	ctx := context.Background()
	m.Promoted(ctx, "document", "document.notice-30", 3)
	m.Enqueued(ctx, "document", "notice_30")
	m.Enqueued(ctx, "document", "notice_30")
	m.EnqueueFailed(ctx, "invoice")
	m.Delivery(ctx, "sent", 40*time.Millisecond)
	m.Delivery(ctx, "retried", 10*time.Millisecond)
	m.Reclaimed(ctx, 0)
	m.Reclaimed(ctx, 2)

	got := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, got["lifecycle.promoted"]))
	assert.Equal(t, int64(2), sumOf(t, got["notification.enqueued"]))
	assert.Equal(t, int64(1), sumOf(t, got["notification.enqueue_failed"]))
	assert.Equal(t, int64(2), sumOf(t, got["notification.deliveries"]))
	assert.Equal(t, int64(2), sumOf(t, got["notification.reclaimed"]))

	hist, ok := got["notification.delivery.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestNoopMetrics(t *testing.T) {
	m := Noop()
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.Delivery(context.Background(), "sent", time.Millisecond)
		m.Promoted(context.Background(), "invoice", "invoice.overdue", 1)
	})
}
