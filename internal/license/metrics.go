package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	// TracerName is the instrumentation name for license spans
	TracerName = "licensegate/license"
	// MeterName is the instrumentation name for license metrics
	MeterName = "licensegate/license"
)

// Metrics holds the license gate instruments
type Metrics struct {
	checks               metric.Int64Counter
	checkDuration        metric.Float64Histogram
	fingerprintFallbacks metric.Int64Counter
	notifications        metric.Int64Counter
	stateTransitions     metric.Int64Counter
}

// NewMetrics registers the license instruments on meter. A nil meter yields
// no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	checks, err := meter.Int64Counter(
		"license_checks_total",
		metric.WithDescription("License server round trips by operation and result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}

	checkDuration, err := meter.Float64Histogram(
		"license_check_duration_seconds",
		metric.WithDescription("Duration of license server round trips"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check duration histogram: %w", err)
	}

	fingerprintFallbacks, err := meter.Int64Counter(
		"license_fingerprint_fallbacks_total",
		metric.WithDescription("Hardware ids generated randomly because probing failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint fallback counter: %w", err)
	}

	notifications, err := meter.Int64Counter(
		"license_notifications_total",
		metric.WithDescription("Notifications addressed to the license window"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications counter: %w", err)
	}

	stateTransitions, err := meter.Int64Counter(
		"license_state_transitions_total",
		metric.WithDescription("License state machine transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state transition counter: %w", err)
	}

	return &Metrics{
		checks:               checks,
		checkDuration:        checkDuration,
		fingerprintFallbacks: fingerprintFallbacks,
		notifications:        notifications,
		stateTransitions:     stateTransitions,
	}, nil
}

// RecordCheck records one license server round trip
func (m *Metrics) RecordCheck(ctx context.Context, op, result string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	)
	m.checks.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFingerprintFallback counts a random hardware id
func (m *Metrics) RecordFingerprintFallback(ctx context.Context) {
	m.fingerprintFallbacks.Add(ctx, 1)
}

// RecordNotification counts a window notification, delivered or dropped
func (m *Metrics) RecordNotification(ctx context.Context, kind NotificationType, delivered bool) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(kind)),
		attribute.Bool("delivered", delivered),
	))
}

// RecordTransition counts a state change
func (m *Metrics) RecordTransition(ctx context.Context, from, to State) {
	m.stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}
