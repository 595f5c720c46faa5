package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the engine's instruments.
type Metrics struct {
	promoted      metric.Int64Counter
	enqueued      metric.Int64Counter
	enqueueFailed metric.Int64Counter
	deliveries    metric.Int64Counter
	reclaimed     metric.Int64Counter
	deliveryDur   metric.Float64Histogram
}

// NewMetrics creates the instruments on m.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)
	if mt.promoted, err = m.Int64Counter("lifecycle.promoted",
		metric.WithDescription("Subjects moved by a transition rule")); err != nil {
		return nil, err
	}
	if mt.enqueued, err = m.Int64Counter("notification.enqueued",
		metric.WithDescription("Notification tasks created")); err != nil {
		return nil, err
	}
	if mt.enqueueFailed, err = m.Int64Counter("notification.enqueue_failed",
		metric.WithDescription("Notification task inserts that failed")); err != nil {
		return nil, err
	}
	if mt.deliveries, err = m.Int64Counter("notification.deliveries",
		metric.WithDescription("Delivery attempts by outcome")); err != nil {
		return nil, err
	}
	if mt.reclaimed, err = m.Int64Counter("notification.reclaimed",
		metric.WithDescription("Stale SENDING claims reclaimed")); err != nil {
		return nil, err
	}
	if mt.deliveryDur, err = m.Float64Histogram("notification.delivery.duration",
		metric.WithDescription("Channel send duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &mt, nil
}

// Noop returns metrics backed by a no-op meter.
func Noop() *Metrics {
	mt, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(instrumentationScope))
	return mt
}

func (m *Metrics) Promoted(ctx context.Context, subjectType, ruleID string, n int) {
	m.promoted.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("subject.type", subjectType),
		attribute.String("rule.id", ruleID),
	))
}

func (m *Metrics) Enqueued(ctx context.Context, subjectType, milestone string) {
	m.enqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subject.type", subjectType),
		attribute.String("milestone", milestone),
	))
}

func (m *Metrics) EnqueueFailed(ctx context.Context, subjectType string) {
	m.enqueueFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("subject.type", subjectType)))
}

// Delivery records one attempt; outcome is sent, retried, failed_terminal or error.
func (m *Metrics) Delivery(ctx context.Context, outcome string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryDur.Record(ctx, float64(took.Milliseconds()), attrs)
}

func (m *Metrics) Reclaimed(ctx context.Context, n int) {
	if n > 0 {
		m.reclaimed.Add(ctx, int64(n))
	}
}
