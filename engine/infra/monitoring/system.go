package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"github.com/compozy/statusstream/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// processMetrics exports the build identity and uptime of the process.
// Both are observed on collection so a scrape always sees current values.
type processMetrics struct {
	startedAt    time.Time
	buildAttrs   metric.MeasurementOption
	registration metric.Registration
}

func newProcessMetrics(meter metric.Meter, info version.Info) (*processMetrics, error) {
	buildInfo, err := meter.Int64ObservableGauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create build info gauge: %w", err)
	}
	uptime, err := meter.Float64ObservableGauge(
		metrics.MetricName("uptime_seconds"),
		metric.WithDescription("Seconds since the process started serving"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create uptime gauge: %w", err)
	}
	pm := &processMetrics{
		startedAt: time.Now(),
		buildAttrs: metric.WithAttributes(
			attribute.String("version", info.Version),
			attribute.String("commit_hash", info.CommitHash),
			attribute.String("go_version", info.GoVersion),
		),
	}
	pm.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(buildInfo, 1, pm.buildAttrs)
		o.ObserveFloat64(uptime, time.Since(pm.startedAt).Seconds())
		return nil
	}, buildInfo, uptime)
	if err != nil {
		return nil, fmt.Errorf("register process callback: %w", err)
	}
	return pm, nil
}

func (p *processMetrics) close() error {
	if p == nil || p.registration == nil {
		return nil
	}
	return p.registration.Unregister()
}
