package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Verification outcomes reported by Metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "fail"
)

// Metrics counts session token verifications and their latency. A nil
// *Metrics records nothing.
type Metrics struct {
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("auth", "attempts_total"),
		metric.WithDescription("Session token verifications grouped by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth attempts counter: %w", err)
	}
	latency, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("auth", "duration_seconds"),
		metric.WithDescription("Time spent verifying session tokens"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth duration histogram: %w", err)
	}
	return &Metrics{attempts: attempts, latency: latency}, nil
}

// Record reports one verification that started at start.
func (m *Metrics) Record(ctx context.Context, outcome string, start time.Time) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.attempts.Add(ctx, 1, attrs)
	m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
}
