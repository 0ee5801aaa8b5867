package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMeteredRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := NewHTTPMetrics(meter)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(m.Handler())
	return router, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestHTTPMetrics(t *testing.T) {
	t.Run("Should record requests by route template", func(t *testing.T) {
		router, reader := newMeteredRouter(t)
		router.GET("/api/v0/conversations/:id/events", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"events": []any{}})
		})
		for _, id := range []string{"c-1", "c-2", "c-3"} {
			req := httptest.NewRequest(http.MethodGet, "/api/v0/conversations/"+id+"/events", http.NoBody)
			router.ServeHTTP(httptest.NewRecorder(), req)
		}
		sum, ok := collect(t, reader)["statusstream_http_requests_total"].(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		dp := sum.DataPoints[0]
		assert.Equal(t, int64(3), dp.Value)
		attrs := dp.Attributes.ToSlice()
		assert.Contains(t, attrs, attribute.String("path", "/api/v0/conversations/:id/events"))
		assert.Contains(t, attrs, attribute.String("status_code", "200"))
	})

	t.Run("Should label unmatched routes", func(t *testing.T) {
		router, reader := newMeteredRouter(t)
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", http.NoBody))
		sum, ok := collect(t, reader)["statusstream_http_requests_total"].(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		attrs := sum.DataPoints[0].Attributes.ToSlice()
		assert.Contains(t, attrs, attribute.String("path", unmatchedRoute))
		assert.Contains(t, attrs, attribute.String("status_code", "404"))
	})

	t.Run("Should keep websocket upgrades out of the latency histogram", func(t *testing.T) {
		router, reader := newMeteredRouter(t)
		router.GET("/ws", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
		req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
		req.Header.Set("Connection", "upgrade")
		req.Header.Set("Upgrade", "websocket")
		router.ServeHTTP(httptest.NewRecorder(), req)
		got := collect(t, reader)
		upgrades, ok := got["statusstream_http_websocket_upgrades_total"].(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, upgrades.DataPoints, 1)
		assert.Equal(t, int64(1), upgrades.DataPoints[0].Value)
		if hist, ok := got["statusstream_http_request_duration_seconds"].(metricdata.Histogram[float64]); ok {
			assert.Empty(t, hist.DataPoints)
		}
	})

	t.Run("Should reject a nil meter", func(t *testing.T) {
		_, err := NewHTTPMetrics(nil)
		assert.Error(t, err)
	})
}
