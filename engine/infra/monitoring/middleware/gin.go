// Package middleware holds the HTTP instrumentation mounted on the API router.
package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unmatchedRoute = "unmatched"

// HTTPMetrics records request counts, latency and concurrency per route template.
type HTTPMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	upgrades metric.Int64Counter
}

// NewHTTPMetrics creates the HTTP instruments on meter.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	if meter == nil {
		return nil, fmt.Errorf("http metrics: meter is nil")
	}
	var (
		m   HTTPMetrics
		err error
	)
	if m.requests, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("http", "requests_total"),
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	if m.latency, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("http", "request_duration_seconds"),
		metric.WithDescription("HTTP request latency, excluding websocket sessions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.HTTPDurationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("http", "requests_in_flight"),
		metric.WithDescription("Requests currently being served"),
	); err != nil {
		return nil, fmt.Errorf("create in-flight counter: %w", err)
	}
	if m.upgrades, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("http", "websocket_upgrades_total"),
		metric.WithDescription("Requests that asked for a websocket upgrade"),
	); err != nil {
		return nil, fmt.Errorf("create upgrade counter: %w", err)
	}
	return &m, nil
}

// Handler returns the gin middleware. Websocket requests are counted but kept
// out of the latency histogram since their duration is the session length.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		websocket := c.IsWebsocket()
		if !websocket {
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		m.requests.Add(ctx, 1, attrs)
		if websocket {
			m.upgrades.Add(ctx, 1, metric.WithAttributes(attribute.String("path", route)))
			return
		}
		m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
