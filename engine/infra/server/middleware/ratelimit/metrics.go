package ratelimit

import (
	"context"
	"sync"

	"github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/compozy/statusstream/ratelimit"

// Block scopes.
const (
	scopeHTTP = "http"
	scopeEmit = "emit"
)

// blockedCounter is created on the global meter provider, which forwards to
// the monitoring provider once the server installs it.
var blockedCounter = sync.OnceValue(func() metric.Int64Counter {
	counter, err := otel.Meter(meterName).Int64Counter(
		metrics.MetricName("rate_limit_blocks_total"),
		metric.WithDescription("Requests and emissions rejected by rate limiting"),
	)
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
})

func recordBlocked(ctx context.Context, scope, keyType string) {
	blockedCounter().Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("key_type", keyType),
	))
}
