package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	monitoringmetrics "github.com/compozy/statusstream/engine/infra/monitoring/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "default"
	postgresMeterName = "statusstream.postgres"
)

var (
	poolGaugesOnce sync.Once
	poolGaugesErr  error
	connsOpen      metric.Int64ObservableGauge
	connsInUse     metric.Int64ObservableGauge
	connsIdle      metric.Int64ObservableGauge
	observedPools  sync.Map
)

// poolStats registers a pool with the shared observable gauges.
type poolStats struct {
	label string
	pool  *pgxpool.Pool
}

func observePool(pool *pgxpool.Pool, label string) (*poolStats, error) {
	if err := ensurePoolGauges(); err != nil {
		return nil, err
	}
	stats := &poolStats{label: label, pool: pool}
	observedPools.Store(stats, struct{}{})
	return stats, nil
}

func (p *poolStats) unregister() {
	if p == nil {
		return
	}
	observedPools.Delete(p)
}

func ensurePoolGauges() error {
	poolGaugesOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(postgresMeterName)
		var err error
		if connsOpen, err = meter.Int64ObservableGauge(
			monitoringmetrics.MetricNameWithSubsystem("postgres", "connections_open"),
			metric.WithDescription("Number of open Postgres connections"),
		); err != nil {
			poolGaugesErr = err
			return
		}
		if connsInUse, err = meter.Int64ObservableGauge(
			monitoringmetrics.MetricNameWithSubsystem("postgres", "connections_in_use"),
			metric.WithDescription("Number of Postgres connections currently in use"),
		); err != nil {
			poolGaugesErr = err
			return
		}
		if connsIdle, err = meter.Int64ObservableGauge(
			monitoringmetrics.MetricNameWithSubsystem("postgres", "connections_idle"),
			metric.WithDescription("Number of idle Postgres connections"),
		); err != nil {
			poolGaugesErr = err
			return
		}
		_, err = meter.RegisterCallback(observePools, connsOpen, connsInUse, connsIdle)
		if err != nil {
			poolGaugesErr = fmt.Errorf("postgres: register pool callback: %w", err)
		}
	})
	return poolGaugesErr
}

func observePools(_ context.Context, observer metric.Observer) error {
	observedPools.Range(func(key, _ any) bool {
		stats, ok := key.(*poolStats)
		if !ok || stats.pool == nil {
			return true
		}
		s := stats.pool.Stat()
		attrs := metric.WithAttributes(attribute.String("pool", stats.label))
		observer.ObserveInt64(connsOpen, int64(s.TotalConns()), attrs)
		observer.ObserveInt64(connsInUse, int64(s.AcquiredConns()), attrs)
		observer.ObserveInt64(connsIdle, int64(s.IdleConns()), attrs)
		return true
	})
	return nil
}

// poolLabel derives a low-cardinality label from host and database name.
func poolLabel(cfg *Config) string {
	parts := make([]string, 0, 2)
	for _, raw := range []string{cfg.Host, cfg.DBName} {
		if s := sanitizeLabel(raw); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return defaultPoolLabel
	}
	return strings.Join(parts, "-")
}

func sanitizeLabel(component string) string {
	lower := strings.ToLower(strings.TrimSpace(component))
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
