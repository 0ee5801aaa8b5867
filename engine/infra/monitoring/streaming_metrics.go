package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamMetrics records emitter, queue drain and websocket session telemetry.
// A zero value is valid and records nothing.
type StreamMetrics struct {
	eventsEmitted   metric.Int64Counter
	publishFailures metric.Int64Counter
	rateLimited     metric.Int64Counter
	hookFailures    metric.Int64Counter
	drainedEvents   metric.Int64Histogram
	activeSessions  metric.Int64UpDownCounter
	sessionDuration metric.Float64Histogram
	relayedMessages metric.Int64Counter
}

// NewStreamMetrics creates every stream instrument on meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	if meter == nil {
		return &StreamMetrics{}, nil
	}
	m := &StreamMetrics{}
	var err error
	if m.eventsEmitted, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("emitter", "events_total"),
		metric.WithDescription("Events emitted grouped by event type"),
	); err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	if m.publishFailures, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("emitter", "publish_failures_total"),
		metric.WithDescription("Failed publishes grouped by sink (queue or router)"),
	); err != nil {
		return nil, fmt.Errorf("create publish failures counter: %w", err)
	}
	if m.rateLimited, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("emitter", "rate_limited_total"),
		metric.WithDescription("Emissions rejected by the rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("create rate limited counter: %w", err)
	}
	if m.hookFailures, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("emitter", "hook_failures_total"),
		metric.WithDescription("Completion hooks that returned an error or panicked"),
	); err != nil {
		return nil, fmt.Errorf("create hook failures counter: %w", err)
	}
	if m.drainedEvents, err = meter.Int64Histogram(
		metrics.MetricNameWithSubsystem("queue", "drained_events"),
		metric.WithDescription("Envelopes returned per queue drain"),
		metric.WithExplicitBucketBoundaries(metrics.DrainSizeBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create drained events histogram: %w", err)
	}
	if m.activeSessions, err = meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("ws", "active_sessions"),
		metric.WithDescription("Open websocket sessions"),
	); err != nil {
		return nil, fmt.Errorf("create active sessions counter: %w", err)
	}
	if m.sessionDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("ws", "session_duration_seconds"),
		metric.WithDescription("Websocket session lifetime"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.SessionDurationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create session duration histogram: %w", err)
	}
	if m.relayedMessages, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("ws", "relayed_messages_total"),
		metric.WithDescription("Channel messages relayed to websocket sessions grouped by purpose"),
	); err != nil {
		return nil, fmt.Errorf("create relayed messages counter: %w", err)
	}
	return m, nil
}

func (m *StreamMetrics) RecordEmit(ctx context.Context, eventType string) {
	if m == nil || m.eventsEmitted == nil {
		return
	}
	m.eventsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *StreamMetrics) RecordPublishFailure(ctx context.Context, sink string) {
	if m == nil || m.publishFailures == nil {
		return
	}
	m.publishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

func (m *StreamMetrics) RecordRateLimited(ctx context.Context) {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Add(ctx, 1)
}

func (m *StreamMetrics) RecordHookFailure(ctx context.Context, count int) {
	if m == nil || m.hookFailures == nil || count <= 0 {
		return
	}
	m.hookFailures.Add(ctx, int64(count))
}

// RecordDrain captures how many envelopes one drain returned.
func (m *StreamMetrics) RecordDrain(ctx context.Context, count int) {
	if m == nil || m.drainedEvents == nil {
		return
	}
	m.drainedEvents.Record(ctx, int64(count))
}

// SessionOpened increments the open websocket session gauge.
func (m *StreamMetrics) SessionOpened(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// SessionClosed decrements the gauge and records the session lifetime.
func (m *StreamMetrics) SessionClosed(ctx context.Context, lifetime time.Duration) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
	m.sessionDuration.Record(ctx, lifetime.Seconds())
}

// RecordRelay counts a channel message forwarded to a websocket session.
func (m *StreamMetrics) RecordRelay(ctx context.Context, purpose string) {
	if m == nil || m.relayedMessages == nil {
		return
	}
	m.relayedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}
