package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics(t *testing.T) {
	t.Run("Should count verifications by outcome", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
		require.NoError(t, err)
		ctx := context.Background()
		start := time.Now()
		m.Record(ctx, OutcomeSuccess, start)
		m.Record(ctx, OutcomeFailure, start)
		m.Record(ctx, OutcomeFailure, start)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		counts := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name != "statusstream_auth_attempts_total" {
					continue
				}
				sum, ok := metric.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					outcome, _ := dp.Attributes.Value("outcome")
					counts[outcome.AsString()] = dp.Value
				}
			}
		}
		assert.Equal(t, map[string]int64{OutcomeSuccess: 1, OutcomeFailure: 2}, counts)
	})

	t.Run("Should ignore records on a nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() { m.Record(context.Background(), OutcomeSuccess, time.Now()) })
	})
}
