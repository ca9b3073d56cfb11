package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IntakeMetrics counts processed updates by terminal state.
// A nil *IntakeMetrics records nothing.
type IntakeMetrics struct {
	updates  metric.Int64Counter
	duration metric.Float64Histogram
}

func NewIntakeMetrics(meter metric.Meter) (*IntakeMetrics, error) {
	m := &IntakeMetrics{}
	var err error
	m.updates, err = meter.Int64Counter(
		"remindbot.intake.updates",
		metric.WithDescription("Inbound updates processed, by outcome"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create updates counter: %w", err)
	}
	m.duration, err = meter.Float64Histogram(
		"remindbot.intake.duration",
		metric.WithDescription("Time spent processing one update"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return m, nil
}

func (m *IntakeMetrics) Record(ctx context.Context, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.updates.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}

// DeliveryMetrics counts reminders sent by the delivery service.
type DeliveryMetrics struct {
	sent   metric.Int64Counter
	failed metric.Int64Counter
}

func NewDeliveryMetrics(meter metric.Meter) (*DeliveryMetrics, error) {
	m := &DeliveryMetrics{}
	var err error
	m.sent, err = meter.Int64Counter("remindbot.delivery.sent",
		metric.WithDescription("Reminders delivered"), metric.WithUnit("{reminder}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sent counter: %w", err)
	}
	m.failed, err = meter.Int64Counter("remindbot.delivery.failed",
		metric.WithDescription("Reminder deliveries that failed"), metric.WithUnit("{reminder}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}
	return m, nil
}

func (m *DeliveryMetrics) Sent(ctx context.Context) {
	if m != nil {
		m.sent.Add(ctx, 1)
	}
}

func (m *DeliveryMetrics) Failed(ctx context.Context, stage string) {
	if m != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}
